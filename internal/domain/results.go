package domain

// MergeRow combines a catchment's parameters with its Tc and peak flows into
// a metric result row. pourPointID is the value of the caller's pour point
// field; it is usually the catchment id.
func MergeRow(p CatchmentParameters, tcHr float64, q PeakFlowResult, pourPointID string) ResultRow {
	return ResultRow{
		ID:                    p.ID,
		PourPointID:           pourPointID,
		Discharge:             append([]float64(nil), q.Discharge...),
		AvgSlopePct:           p.AvgSlopePct,
		AvgCurveNumber:        p.AvgCurveNumber,
		AreaUpstream:          p.AreaSqKm,
		MaxFlowLength:         p.MaxFlowLengthM,
		TimeOfConcentrationHr: tcHr,
	}
}

// ComputeRow runs the engine for one catchment: Tc, then peak flow for every
// frequency of the precipitation table.
func ComputeRow(p CatchmentParameters, precip PrecipitationTable, pourPointID string) ResultRow {
	tc := TimeOfConcentration(p.MaxFlowLengthM, p.AvgSlopePct)
	q := PeakFlow(p.AreaSqKm, tc, p.AvgCurveNumber, precip.DepthsCM, precip.Frequencies)
	return MergeRow(p, tc, q, pourPointID)
}

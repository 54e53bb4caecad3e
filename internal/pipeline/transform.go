package pipeline

import (
	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

// catchmentOutcome is the result of one catchment record. Exactly one of row
// or err is meaningful.
type catchmentOutcome struct {
	row     domain.ResultRow
	issues  []domain.FieldIssue
	invalid bool
	err     error
}

// transform ingests one raw record and runs the engine on it: Tc, then peak
// flow for every frequency of the precipitation table.
func (o *Orchestrator) transform(index int, raw domain.RawCatchment, precip domain.PrecipitationTable) catchmentOutcome {
	p, issues, err := domain.ParseCatchment(index, raw, o.opts.Factors, o.opts.Strict)
	if err != nil {
		return catchmentOutcome{err: err}
	}

	pourPointID := raw.PourPointID.String()
	if pourPointID == "" {
		pourPointID = p.ID
	}

	row := domain.ComputeRow(p, precip, pourPointID)
	if len(issues) > 0 {
		// A zero Tc keeps the row at no runoff when it is rerun.
		row.TimeOfConcentrationHr = 0
		row.Discharge = make([]float64, len(row.Discharge))
	}
	return catchmentOutcome{
		row:     row,
		issues:  issues,
		invalid: len(issues) > 0 || !domain.IsValidForRunoff(row.AvgCurveNumber, row.TimeOfConcentrationHr),
	}
}

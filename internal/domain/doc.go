// Package domain implements the TR-55 graphical peak-discharge method for
// small urban catchments draining to a pour point (inlet, culvert, outfall).
//
// # Inputs
//
// Precipitation tables come from the NOAA Precipitation Frequency Data Server
// (PFDS) "depth-based" CSV export, in inches. After a block of metadata lines
// the table has a header row keyed by a description cell and one column per
// average recurrence interval in years:
//
//	by duration for ARI (years):, 1,    2,    5,    10,  ...
//	5-min:,                       0.34, 0.40, 0.49, 0.56, ...
//	24-hr:,                       2.73, 3.28, 4.18, 4.93, ...
//
// Only the row for the configured storm duration (24-hr by default) is kept.
// Depths are converted to centimeters and rounded to two decimals. Tables from
// the Cornell Northeast Regional Climate Center (NRCC) use a fixed layout and
// are parsed by [ParseNRCCTable].
//
// Catchment records are produced by a GIS collaborator (watershed delineation
// plus zonal statistics) and arrive as text: id, contributing area, mean
// percent slope, mean curve number and maximum upstream flow length, in the
// linear unit of the reference raster. [ParseCatchment] validates and
// normalizes them to square kilometers and meters.
//
// # Units
//
// The formulas assume metric inputs:
//
//	area            km²
//	flow length     m
//	rainfall depth  cm
//	discharge       m³/s
//	Tc              hours
//
// Results may be reported in imperial units (acres, ft, ft³/s) using fixed
// conversion constants; see [ConvertTable].
//
// # Invalid data
//
// A catchment whose curve number or time of concentration is zero or missing
// reports zero discharge for every frequency. This is a reporting policy, not
// an error: partially covered catchments (no CN coverage, no flow path) are
// common at the edge of a study area.
//
// # Storm distribution
//
// The unit peak discharge regression coefficients are the TR-55 Type II
// 24-hour values. The rain ratio Ia/P is clamped to [0.1, 0.5], the range the
// regression was fitted on.
package domain

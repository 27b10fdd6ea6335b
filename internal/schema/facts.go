package schema

// Normalized source column names referenced outside this package.
const (
	ColCountyCode       = "county_code"
	ColDistrictCode     = "district_code"
	ColSchoolCode       = "school_code"
	ColTypeID           = "type_id"
	ColTestYear         = "test_year"
	ColTestType         = "test_type"
	ColTestID           = "test_id"
	ColStudentGroupID   = "student_group_id"
	ColMeanScaleScore   = "mean_scale_score"
	ColTested           = "total_students_tested"
	ColTestedWithScores = "total_students_tested_with_scores"
	ColCountyName       = "county_name"
	ColDistrictName     = "district_name"
	ColSchoolName       = "school_name"
	ColZipCode          = "zip_code"
	ColGrade            = "grade"
)

// Fact table column names, in wire order.
const (
	FactYearKey          = "year_key"
	FactTestID           = "test_id"
	FactSubgroup         = "subgroup"
	FactGrade            = "grade"
	FactTested           = "tested"
	FactTestedWithScores = "tested_with_scores"
	FactMeanScaleScore   = "mean_scale_score"
	FactPctExceeded      = "pct_exceeded"
	FactCntExceeded      = "cnt_exceeded"
	FactPctMet           = "pct_met"
	FactCntMet           = "cnt_met"
	FactPctMetAndAbove   = "pct_met_and_above"
	FactCntMetAndAbove   = "cnt_met_and_above"
	FactPctNearlyMet     = "pct_nearly_met"
	FactCntNearlyMet     = "cnt_nearly_met"
	FactPctNotMet        = "pct_not_met"
	FactCntNotMet        = "cnt_not_met"
	FactCountyCode       = "county_code"
	FactDistrictCode     = "district_code"
	FactSchoolCode       = "school_code"
	FactCDSCode          = "cds_code"
	FactCountyName       = "county_name"
	FactDistrictName     = "district_name"
	FactSchoolName       = "school_name"
)

// FactColumns is the canonical column list of the fact table. The reshape
// step and every bulk-load statement use exactly this order.
var FactColumns = []string{
	FactYearKey,
	FactTestID,
	FactSubgroup,
	FactGrade,
	FactTested,
	FactTestedWithScores,
	FactMeanScaleScore,
	FactPctExceeded,
	FactCntExceeded,
	FactPctMet,
	FactCntMet,
	FactPctMetAndAbove,
	FactCntMetAndAbove,
	FactPctNearlyMet,
	FactCntNearlyMet,
	FactPctNotMet,
	FactCntNotMet,
	FactCountyCode,
	FactDistrictCode,
	FactSchoolCode,
	FactCDSCode,
	FactCountyName,
	FactDistrictName,
	FactSchoolName,
}

// FactSources maps fact columns that are copied from the results file onto
// their normalized source column. Fact columns missing from this map are
// derived (year_key, cds_code) or enriched (county_name).
var FactSources = map[string]string{
	FactTestID:           ColTestID,
	FactSubgroup:         ColStudentGroupID,
	FactGrade:            ColGrade,
	FactTested:           ColTested,
	FactTestedWithScores: ColTestedWithScores,
	FactMeanScaleScore:   ColMeanScaleScore,
	FactPctExceeded:      "percentage_standard_exceeded",
	FactCntExceeded:      "count_standard_exceeded",
	FactPctMet:           "percentage_standard_met",
	FactCntMet:           "count_standard_met",
	FactPctMetAndAbove:   "percentage_standard_met_and_above",
	FactCntMetAndAbove:   "count_standard_met_and_above",
	FactPctNearlyMet:     "percentage_standard_nearly_met",
	FactCntNearlyMet:     "count_standard_nearly_met",
	FactPctNotMet:        "percentage_standard_not_met",
	FactCntNotMet:        "count_standard_not_met",
	FactCountyCode:       ColCountyCode,
	FactDistrictCode:     ColDistrictCode,
	FactSchoolCode:       ColSchoolCode,
	FactDistrictName:     ColDistrictName,
	FactSchoolName:       ColSchoolName,
}

// Code widths of the California CDS identifier segments.
const (
	CountyCodeWidth   = 2
	DistrictCodeWidth = 5
	SchoolCodeWidth   = 7
	CDSCodeWidth      = CountyCodeWidth + DistrictCodeWidth + SchoolCodeWidth
)

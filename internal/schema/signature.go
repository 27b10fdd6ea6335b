package schema

// Kind is the structural classification of a parsed table.
type Kind string

// Table kinds.
const (
	KindUnknown  Kind = "unknown"
	KindTests    Kind = "tests"
	KindEntities Kind = "entities"
)

// TestsSignature lists the columns every results table carries.
var TestsSignature = []string{ColTestType, ColTestID, ColStudentGroupID, ColMeanScaleScore}

// TestedWithScoresNames are the accepted spellings of the "tested with
// scores" metric; a results table must carry at least one of them.
var TestedWithScoresNames = []string{ColTestedWithScores, "students_with_scores"}

// EntitiesSignature lists the columns every entities table carries.
var EntitiesSignature = []string{ColCountyCode, ColDistrictCode, ColSchoolCode, ColTypeID, ColTestYear}

// Classify decides the kind of a table from its normalized column names.
// The tests signature is checked first; a table matching it is never an
// entities table even if it also carries the entity code columns.
func Classify(columns []string) Kind {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	if hasAll(set, TestsSignature) && hasAny(set, TestedWithScoresNames) {
		return KindTests
	}
	if hasAll(set, EntitiesSignature) {
		return KindEntities
	}
	return KindUnknown
}

func hasAll(set map[string]struct{}, names []string) bool {
	for _, n := range names {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

func hasAny(set map[string]struct{}, names []string) bool {
	for _, n := range names {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

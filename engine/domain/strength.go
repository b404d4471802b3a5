package domain

// EvidenceStrengthSystem is the code system for the shared strength
// taxonomy that all sources map into.
const EvidenceStrengthSystem = "varikb.evidence-strength"

// Shared coded strength concepts. Each source's discrete evidence vocabulary
// is mapped into exactly one of these so statements from different sources
// are comparably ranked.
var (
	StrengthAuthoritative  = Coding{ID: "es001", Label: "authoritative evidence", System: EvidenceStrengthSystem}
	StrengthClinicalCohort = Coding{ID: "es002", Label: "clinical cohort evidence", System: EvidenceStrengthSystem}
	StrengthCaseStudy      = Coding{ID: "es003", Label: "case study evidence", System: EvidenceStrengthSystem}
	StrengthPreclinical    = Coding{ID: "es004", Label: "preclinical evidence", System: EvidenceStrengthSystem}
	StrengthInferential    = Coding{ID: "es005", Label: "inferential evidence", System: EvidenceStrengthSystem}
)

// StrengthByID resolves a strength code back to its full coding, e.g. when
// reconstructing statements from graph properties.
func StrengthByID(id string) (Coding, bool) {
	for _, c := range []Coding{
		StrengthAuthoritative, StrengthClinicalCohort, StrengthCaseStudy,
		StrengthPreclinical, StrengthInferential,
	} {
		if c.ID == id {
			return c, true
		}
	}
	return Coding{}, false
}

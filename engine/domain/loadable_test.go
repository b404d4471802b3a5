package domain

import "testing"

func testBundle() *TransformedData {
	return &TransformedData{
		CategoricalVariants: []CategoricalVariant{
			{ID: "civic.mpid:12", DefiningAllele: &Allele{ID: "ga4gh:VA.abc", Digest: "abc"}},
			{ID: "civic.mpid:99"}, // no defining allele
		},
		Genes: []Gene{
			{ID: "civic.gid:5", Label: "BRAF"},
			{ID: "civic.gid:6", Label: "EGFR", Extensions: []Extension{{Name: ExtFailure, Value: true}}},
		},
		Conditions: []Condition{
			{ID: "civic.did:11", Label: "Melanoma"},
		},
		Therapies: []Therapeutic{
			{ID: "ncit:C64768", Agent: &Therapy{ID: "ncit:C64768", Label: "Vemurafenib"}},
			{
				ID:        string(TherapyGroupCombination) + ":x",
				GroupType: TherapyGroupCombination,
				Members: []Therapy{
					{ID: "ncit:C1"},
					{ID: "ncit:C2", Extensions: []Extension{{Name: ExtFailure, Value: true}}},
				},
			},
		},
	}
}

func therapeuticStatement(id, variantID, geneID, conditionID, therapeuticID string) Statement {
	return Statement{
		ID:        id,
		Direction: DirectionSupports,
		Proposition: Proposition{
			Type:              PropositionTherapeuticResponse,
			Predicate:         PredicateSensitivity,
			SubjectVariantID:  variantID,
			ObjectTherapeutic: &Therapeutic{ID: therapeuticID},
			ConditionID:       conditionID,
			GeneContextID:     geneID,
		},
	}
}

func TestLoadableAllResolved(t *testing.T) {
	data := testBundle()
	st := therapeuticStatement("civic.eid:1", "civic.mpid:12", "civic.gid:5", "civic.did:11", "ncit:C64768")
	data.StatementsEvidence = []Statement{st}

	ix := NewEntityIndex(data)
	if !ix.Loadable(&data.StatementsEvidence[0]) {
		t.Fatal("fully resolved statement should be loadable")
	}
}

func TestLoadableRejections(t *testing.T) {
	tests := []struct {
		name string
		st   Statement
	}{
		{"missing variant", therapeuticStatement("e:1", "civic.mpid:404", "civic.gid:5", "civic.did:11", "ncit:C64768")},
		{"variant without defining allele", therapeuticStatement("e:2", "civic.mpid:99", "civic.gid:5", "civic.did:11", "ncit:C64768")},
		{"failed gene context", therapeuticStatement("e:3", "civic.mpid:12", "civic.gid:6", "civic.did:11", "ncit:C64768")},
		{"missing condition", therapeuticStatement("e:4", "civic.mpid:12", "civic.gid:5", "civic.did:404", "ncit:C64768")},
		{"missing therapeutic", therapeuticStatement("e:5", "civic.mpid:12", "civic.gid:5", "civic.did:11", "ncit:C404")},
		{"group with failed member", therapeuticStatement("e:6", "civic.mpid:12", "civic.gid:5", "civic.did:11", string(TherapyGroupCombination)+":x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testBundle()
			data.StatementsEvidence = []Statement{tt.st}
			ix := NewEntityIndex(data)
			if ix.Loadable(&data.StatementsEvidence[0]) {
				t.Error("expected statement to be unloadable")
			}
		})
	}
}

func TestLoadableDiagnosticRequiresCondition(t *testing.T) {
	data := testBundle()
	st := Statement{
		ID: "e:7",
		Proposition: Proposition{
			Type:             PropositionDiagnostic,
			Predicate:        PredicateDiagnosticInclusion,
			SubjectVariantID: "civic.mpid:12",
		},
	}
	data.StatementsEvidence = []Statement{st}
	ix := NewEntityIndex(data)
	if ix.Loadable(&data.StatementsEvidence[0]) {
		t.Fatal("diagnostic statement without condition should be unloadable")
	}
}

func TestLoadableRecursesEvidenceLines(t *testing.T) {
	data := testBundle()
	bad := therapeuticStatement("civic.eid:2", "civic.mpid:404", "civic.gid:5", "civic.did:11", "ncit:C64768")
	assertion := therapeuticStatement("civic.aid:1", "civic.mpid:12", "civic.gid:5", "civic.did:11", "ncit:C64768")
	assertion.EvidenceLines = []EvidenceLine{{DirectionOfSupport: DirectionSupports, StatementIDs: []string{"civic.eid:2"}}}
	data.StatementsEvidence = []Statement{bad}
	data.StatementsAssertions = []Statement{assertion}

	ix := NewEntityIndex(data)
	if ix.Loadable(&data.StatementsAssertions[0]) {
		t.Fatal("assertion with unloadable evidence line should be unloadable")
	}
}

func TestLoadableCycleGuard(t *testing.T) {
	data := testBundle()
	a := therapeuticStatement("s:a", "civic.mpid:12", "civic.gid:5", "civic.did:11", "ncit:C64768")
	b := therapeuticStatement("s:b", "civic.mpid:12", "civic.gid:5", "civic.did:11", "ncit:C64768")
	a.EvidenceLines = []EvidenceLine{{DirectionOfSupport: DirectionSupports, StatementIDs: []string{"s:b"}}}
	b.EvidenceLines = []EvidenceLine{{DirectionOfSupport: DirectionSupports, StatementIDs: []string{"s:a"}}}
	data.StatementsEvidence = []Statement{a, b}

	ix := NewEntityIndex(data)
	if ix.Loadable(&data.StatementsEvidence[0]) {
		t.Fatal("cyclic evidence lines must not be loadable")
	}
}

func TestLoadablePanicsOnUnknownProposition(t *testing.T) {
	data := testBundle()
	st := Statement{ID: "e:8", Proposition: Proposition{Type: "Bogus", SubjectVariantID: "civic.mpid:12"}}
	data.StatementsEvidence = []Statement{st}
	ix := NewEntityIndex(data)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unsupported proposition type")
		}
	}()
	ix.Loadable(&data.StatementsEvidence[0])
}

package domain

// EntityIndex resolves bundle-internal references by canonical ID. It is
// built once per bundle and shared by the transform-time and load-time
// loadability checks.
type EntityIndex struct {
	variants   map[string]*CategoricalVariant
	genes      map[string]*Gene
	conditions map[string]*Condition
	therapies  map[string]*Therapeutic
	statements map[string]*Statement
}

// NewEntityIndex indexes a transformed bundle.
func NewEntityIndex(data *TransformedData) *EntityIndex {
	ix := &EntityIndex{
		variants:   make(map[string]*CategoricalVariant, len(data.CategoricalVariants)),
		genes:      make(map[string]*Gene, len(data.Genes)),
		conditions: make(map[string]*Condition, len(data.Conditions)),
		therapies:  make(map[string]*Therapeutic, len(data.Therapies)),
		statements: make(map[string]*Statement, len(data.StatementsEvidence)+len(data.StatementsAssertions)),
	}
	for i := range data.CategoricalVariants {
		ix.variants[data.CategoricalVariants[i].ID] = &data.CategoricalVariants[i]
	}
	for i := range data.Genes {
		ix.genes[data.Genes[i].ID] = &data.Genes[i]
	}
	for i := range data.Conditions {
		ix.conditions[data.Conditions[i].ID] = &data.Conditions[i]
	}
	for i := range data.Therapies {
		ix.therapies[data.Therapies[i].ID] = &data.Therapies[i]
	}
	for i := range data.StatementsEvidence {
		ix.statements[data.StatementsEvidence[i].ID] = &data.StatementsEvidence[i]
	}
	for i := range data.StatementsAssertions {
		ix.statements[data.StatementsAssertions[i].ID] = &data.StatementsAssertions[i]
	}
	return ix
}

// Statement returns the indexed statement with the given ID.
func (ix *EntityIndex) Statement(id string) (*Statement, bool) {
	st, ok := ix.statements[id]
	return st, ok
}

// Loadable reports whether every entity the statement references normalized
// successfully, checked recursively through nested evidence lines. A
// reference to a missing or failed entity, or a cycle among evidence lines,
// makes the statement unloadable.
func (ix *EntityIndex) Loadable(st *Statement) bool {
	return ix.loadable(st, make(map[string]bool))
}

func (ix *EntityIndex) loadable(st *Statement, visiting map[string]bool) bool {
	if visiting[st.ID] {
		return false // cycle guard
	}
	visiting[st.ID] = true
	defer delete(visiting, st.ID)

	prop := &st.Proposition

	cv, ok := ix.variants[prop.SubjectVariantID]
	if !ok || cv.DefiningAllele == nil || NormalizerFailed(cv.Extensions) {
		return false
	}

	if prop.GeneContextID != "" {
		g, ok := ix.genes[prop.GeneContextID]
		if !ok || NormalizerFailed(g.Extensions) {
			return false
		}
	}

	switch prop.Type {
	case PropositionTherapeuticResponse:
		if prop.ObjectTherapeutic == nil || !ix.therapeuticLoadable(prop.ObjectTherapeutic) {
			return false
		}
		if prop.ConditionID != "" && !ix.conditionLoadable(prop.ConditionID) {
			return false
		}
	case PropositionDiagnostic, PropositionPrognostic:
		if prop.ConditionID == "" || !ix.conditionLoadable(prop.ConditionID) {
			return false
		}
	default:
		panic(ErrUnsupportedProposition)
	}

	for _, line := range st.EvidenceLines {
		for _, subID := range line.StatementIDs {
			sub, ok := ix.statements[subID]
			if !ok || !ix.loadable(sub, visiting) {
				return false
			}
		}
	}
	return true
}

func (ix *EntityIndex) conditionLoadable(id string) bool {
	c, ok := ix.conditions[id]
	return ok && !NormalizerFailed(c.Extensions)
}

func (ix *EntityIndex) therapeuticLoadable(t *Therapeutic) bool {
	indexed, ok := ix.therapies[t.ID]
	if !ok {
		return false
	}
	if indexed.GroupType == "" {
		return indexed.Agent != nil && !NormalizerFailed(indexed.Agent.Extensions)
	}
	if len(indexed.Members) < 2 {
		return false
	}
	for _, m := range indexed.Members {
		if NormalizerFailed(m.Extensions) {
			return false
		}
	}
	return true
}

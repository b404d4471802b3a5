// Package graph persists the canonical knowledge model into Neo4j and
// answers the concept searches the query engine delegates to it. It is the
// only package allowed to issue writes to the graph.
package graph

import (
	"encoding/json"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/varikb/varikb/engine/domain"
)

// Node labels.
const (
	labelStatement  = "Statement"
	labelVariant    = "CategoricalVariant"
	labelVariation  = "Variation"
	labelGene       = "Gene"
	labelCondition  = "Condition"
	labelTherapy    = "Therapy"
	labelTherapyGrp = "TherapeuticGroup"
	labelStrength   = "Strength"
	labelMethod     = "Method"
	labelDocument   = "Document"
)

// Relationship types.
const (
	relHasVariant         = "HAS_VARIANT"
	relHasGeneContext     = "HAS_GENE_CONTEXT"
	relHasCondition       = "HAS_CONDITION"
	relHasTherapeutic     = "HAS_THERAPEUTIC"
	relHasStrength        = "HAS_STRENGTH"
	relIsReportedIn       = "IS_REPORTED_IN"
	relIsSpecifiedBy      = "IS_SPECIFIED_BY"
	relHasComponents      = "HAS_COMPONENTS"
	relHasSubstitutes     = "HAS_SUBSTITUTES"
	relHasDefiningContext = "HAS_DEFINING_CONTEXT"
	relHasMembers         = "HAS_MEMBERS"
)

func jsonProp(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func strProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func boolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

// strListProp reads a string-list property. The driver returns list
// properties as []any; locally built props may still hold []string.
func strListProp(props map[string]any, key string) []string {
	switch raw := props[key].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// conceptProps flattens the shared concept shape (label, mappings,
// normalizer extensions) into node properties. Searches match on either the
// source-qualified id or the normalizer_id property.
func conceptProps(id, label string, mappings []domain.Mapping, exts []domain.Extension) map[string]any {
	props := map[string]any{"id": id, "label": label}
	if nid, ok := domain.ExtensionValue(exts, domain.ExtNormalizerID).(string); ok && nid != "" {
		props["normalizer_id"] = nid
	}
	if nl, ok := domain.ExtensionValue(exts, domain.ExtNormalizerLabel).(string); ok && nl != "" {
		props["normalizer_label"] = nl
	}
	if domain.NormalizerFailed(exts) {
		props["normalizer_failure"] = true
	}
	if len(mappings) > 0 {
		props["mappings"] = jsonProp(mappings)
	}
	return props
}

func conceptFromProps(props map[string]any) (id, label string, mappings []domain.Mapping, exts []domain.Extension) {
	id = strProp(props, "id")
	label = strProp(props, "label")
	if raw := strProp(props, "mappings"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &mappings)
	}
	if nid := strProp(props, "normalizer_id"); nid != "" {
		exts = append(exts,
			domain.Extension{Name: domain.ExtNormalizerID, Value: nid},
			domain.Extension{Name: domain.ExtNormalizerLabel, Value: strProp(props, "normalizer_label")},
			domain.Extension{Name: domain.ExtPriority, Value: true},
		)
	}
	if boolProp(props, "normalizer_failure") {
		exts = append(exts, domain.Extension{Name: domain.ExtFailure, Value: true})
	}
	return id, label, mappings, exts
}

func geneProps(g domain.Gene) map[string]any {
	return conceptProps(g.ID, g.Label, g.Mappings, g.Extensions)
}

func geneFromProps(props map[string]any) domain.Gene {
	id, label, mappings, exts := conceptFromProps(props)
	return domain.Gene{ID: id, Label: label, Mappings: mappings, Extensions: exts}
}

func conditionProps(c domain.Condition) map[string]any {
	return conceptProps(c.ID, c.Label, c.Mappings, c.Extensions)
}

func conditionFromProps(props map[string]any) domain.Condition {
	id, label, mappings, exts := conceptFromProps(props)
	return domain.Condition{ID: id, Label: label, Mappings: mappings, Extensions: exts}
}

func therapyProps(t domain.Therapy) map[string]any {
	return conceptProps(t.ID, t.Label, t.Mappings, t.Extensions)
}

func therapyFromProps(props map[string]any) domain.Therapy {
	id, label, mappings, exts := conceptFromProps(props)
	return domain.Therapy{ID: id, Label: label, Mappings: mappings, Extensions: exts}
}

func alleleProps(a domain.Allele) map[string]any {
	props := map[string]any{"id": a.ID, "digest": a.Digest, "label": a.Label}
	if len(a.Expressions) > 0 {
		props["expressions"] = jsonProp(a.Expressions)
	}
	return props
}

func alleleFromProps(props map[string]any) domain.Allele {
	a := domain.Allele{
		ID:     strProp(props, "id"),
		Digest: strProp(props, "digest"),
		Label:  strProp(props, "label"),
	}
	if raw := strProp(props, "expressions"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &a.Expressions)
	}
	return a
}

func variantProps(v domain.CategoricalVariant) map[string]any {
	return conceptProps(v.ID, v.Label, v.Mappings, v.Extensions)
}

func variantFromProps(props map[string]any) domain.CategoricalVariant {
	id, label, mappings, exts := conceptFromProps(props)
	return domain.CategoricalVariant{ID: id, Label: label, Mappings: mappings, Extensions: exts}
}

func methodProps(m domain.Method) map[string]any {
	return map[string]any{"id": m.ID, "label": m.Label, "reported_in": m.ReportedIn}
}

func methodFromRecord(rec *neo4j.Record) (domain.Method, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.Method{}, err
	}
	return domain.Method{
		ID:         strProp(node.Props, "id"),
		Label:      strProp(node.Props, "label"),
		ReportedIn: strProp(node.Props, "reported_in"),
	}, nil
}

func documentProps(d domain.Document) map[string]any {
	return map[string]any{
		"id":       d.ID,
		"doi":      d.DOI,
		"pmid":     d.PMID,
		"title":    d.Title,
		"citation": d.Citation,
		"url":      d.URL,
	}
}

func documentFromRecord(rec *neo4j.Record) (domain.Document, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		ID:       strProp(node.Props, "id"),
		DOI:      strProp(node.Props, "doi"),
		PMID:     strProp(node.Props, "pmid"),
		Title:    strProp(node.Props, "title"),
		Citation: strProp(node.Props, "citation"),
		URL:      strProp(node.Props, "url"),
	}, nil
}

// statementProps flattens a statement into node properties. Entity
// references are stored both as properties (for reconstruction) and as
// edges (for traversal-based search).
func statementProps(st domain.Statement) map[string]any {
	props := map[string]any{
		"id":          st.ID,
		"description": st.Description,
		"direction":   string(st.Direction),
		"proposition": string(st.Proposition.Type),
		"predicate":   string(st.Proposition.Predicate),
		"variant_id":  st.Proposition.SubjectVariantID,
	}
	if st.Proposition.GeneContextID != "" {
		props["gene_id"] = st.Proposition.GeneContextID
	}
	if st.Proposition.ConditionID != "" {
		props["condition_id"] = st.Proposition.ConditionID
	}
	if st.Proposition.ObjectTherapeutic != nil {
		props["therapeutic_id"] = st.Proposition.ObjectTherapeutic.ID
	}
	if st.Proposition.AlleleOriginQualifier != "" {
		props["allele_origin"] = st.Proposition.AlleleOriginQualifier
	}
	if st.Strength != nil {
		props["strength_id"] = st.Strength.ID
	}
	if st.StrengthProvenance != nil {
		props["strength_provenance"] = jsonProp(st.StrengthProvenance)
	}
	if st.MethodID != "" {
		props["method_id"] = st.MethodID
	}
	if len(st.DocumentIDs) > 0 {
		props["document_ids"] = st.DocumentIDs
	}
	if len(st.EvidenceLines) > 0 {
		props["evidence_lines"] = jsonProp(st.EvidenceLines)
	}
	return props
}

// statementFromProps rebuilds a statement shell from node properties. The
// embedded therapeutic object is attached separately from its own nodes.
func statementFromProps(props map[string]any) domain.Statement {
	st := domain.Statement{
		ID:          strProp(props, "id"),
		Description: strProp(props, "description"),
		Direction:   domain.Direction(strProp(props, "direction")),
		MethodID:    strProp(props, "method_id"),
		DocumentIDs: strListProp(props, "document_ids"),
		Proposition: domain.Proposition{
			Type:                  domain.PropositionType(strProp(props, "proposition")),
			Predicate:             domain.Predicate(strProp(props, "predicate")),
			SubjectVariantID:      strProp(props, "variant_id"),
			GeneContextID:         strProp(props, "gene_id"),
			ConditionID:           strProp(props, "condition_id"),
			AlleleOriginQualifier: strProp(props, "allele_origin"),
		},
	}
	if sid := strProp(props, "strength_id"); sid != "" {
		if coding, ok := domain.StrengthByID(sid); ok {
			st.Strength = &coding
		}
	}
	if raw := strProp(props, "strength_provenance"); raw != "" {
		var m domain.Mapping
		if json.Unmarshal([]byte(raw), &m) == nil {
			st.StrengthProvenance = &m
		}
	}
	if raw := strProp(props, "evidence_lines"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &st.EvidenceLines)
	}
	return st
}

// therapeuticLabel picks the node label for a therapeutic: plain agents are
// Therapy nodes, groups get their own label with member edges.
func therapeuticLabel(t domain.Therapeutic) string {
	if t.GroupType == "" {
		return labelTherapy
	}
	return labelTherapyGrp
}

// memberRel maps a group type to its membership relationship. Panics on an
// unknown group type since that is a data-model mismatch.
func memberRel(gt domain.TherapyGroupType) string {
	switch gt {
	case domain.TherapyGroupCombination:
		return relHasComponents
	case domain.TherapyGroupSubstitutes:
		return relHasSubstitutes
	default:
		panic(domain.ErrInvalidTherapyGroup)
	}
}

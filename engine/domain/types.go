// Package domain defines the canonical clinical-genomics data model shared by
// the transformation engine, the graph repository, and the query engine. It
// also owns content-derived identity (digests) and the recursive loadability
// check applied before any statement reaches the graph.
package domain

// Coding is a concept drawn from a code system.
type Coding struct {
	ID     string `json:"id,omitempty"`
	Label  string `json:"label,omitempty"`
	System string `json:"system,omitempty"`
}

// Mapping relates a concept to an entry in an external vocabulary.
type Mapping struct {
	Coding   Coding `json:"coding"`
	Relation string `json:"relation,omitempty"` // exactMatch, relatedMatch
}

// Extension carries source- or normalizer-specific annotations on an entity.
type Extension struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Extension names written by the transformation engine.
const (
	ExtNormalizerID    = "normalizer_id"
	ExtNormalizerLabel = "normalizer_label"
	ExtPriority        = "normalizer_id_is_priority"
	ExtFailure         = "normalizer_failure"
)

// Direction states whether evidence supports or refutes a proposition.
type Direction string

const (
	DirectionSupports Direction = "supports"
	DirectionRefutes  Direction = "refutes"
	DirectionNone     Direction = "none"
)

// PropositionType discriminates the kinds of clinical claims a statement can
// make. Every consumption site must switch exhaustively over these values.
type PropositionType string

const (
	PropositionTherapeuticResponse PropositionType = "VariantTherapeuticResponseProposition"
	PropositionDiagnostic          PropositionType = "VariantDiagnosticProposition"
	PropositionPrognostic          PropositionType = "VariantPrognosticProposition"
)

// Predicate is the relationship asserted between subject and object.
type Predicate string

const (
	PredicateSensitivity         Predicate = "predictsSensitivityTo"
	PredicateResistance          Predicate = "predictsResistanceTo"
	PredicateDiagnosticInclusion Predicate = "isDiagnosticInclusionCriterionFor"
	PredicateDiagnosticExclusion Predicate = "isDiagnosticExclusionCriterionFor"
	PredicateBetterOutcome       Predicate = "associatedWithBetterOutcomeFor"
	PredicateWorseOutcome        Predicate = "associatedWithWorseOutcomeFor"
)

// Expression is one nomenclature rendering of a variation.
type Expression struct {
	Syntax string `json:"syntax"` // hgvs.c, hgvs.g, hgvs.p
	Value  string `json:"value"`
}

// Allele is a single normalized variation representation.
type Allele struct {
	ID          string       `json:"id"`
	Digest      string       `json:"digest,omitempty"`
	Label       string       `json:"label,omitempty"`
	Expressions []Expression `json:"expressions,omitempty"`
	Extensions  []Extension  `json:"extensions,omitempty"`
}

// CategoricalVariant is a named class of variation. It is defined by exactly
// one defining allele; Members is a non-exhaustive list of congruent
// representations (e.g. genomic vs. protein HGVS).
type CategoricalVariant struct {
	ID             string      `json:"id"`
	Label          string      `json:"label,omitempty"`
	DefiningAllele *Allele     `json:"defining_allele,omitempty"`
	Members        []Allele    `json:"members,omitempty"`
	Mappings       []Mapping   `json:"mappings,omitempty"`
	Extensions     []Extension `json:"extensions,omitempty"`
}

// Gene is a mappable gene concept.
type Gene struct {
	ID         string      `json:"id"`
	Label      string      `json:"label,omitempty"`
	Mappings   []Mapping   `json:"mappings,omitempty"`
	Extensions []Extension `json:"extensions,omitempty"`
}

// Condition is a mappable disease/phenotype concept.
type Condition struct {
	ID         string      `json:"id"`
	Label      string      `json:"label,omitempty"`
	Mappings   []Mapping   `json:"mappings,omitempty"`
	Extensions []Extension `json:"extensions,omitempty"`
}

// Therapy is a single mappable therapeutic agent.
type Therapy struct {
	ID         string      `json:"id"`
	Label      string      `json:"label,omitempty"`
	Mappings   []Mapping   `json:"mappings,omitempty"`
	Extensions []Extension `json:"extensions,omitempty"`
}

// TherapyGroupType distinguishes the two multi-agent combinations.
type TherapyGroupType string

const (
	// TherapyGroupSubstitutes is a logical OR over interchangeable agents.
	TherapyGroupSubstitutes TherapyGroupType = "TherapeuticSubstituteGroup"
	// TherapyGroupCombination is a logical AND over co-administered agents.
	TherapyGroupCombination TherapyGroupType = "CombinationTherapy"
)

// Therapeutic is either a single agent (GroupType empty, Agent set) or a
// group (GroupType set, Members populated). Group identity is a digest over
// the sorted member IDs, so it is independent of member order.
type Therapeutic struct {
	ID        string           `json:"id"`
	GroupType TherapyGroupType `json:"group_type,omitempty"`
	Agent     *Therapy         `json:"agent,omitempty"`
	Members   []Therapy        `json:"members,omitempty"`
}

// Method is the curation method that produced a statement. Methods are few
// and static, one per source.
type Method struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	ReportedIn string `json:"reported_in,omitempty"`
}

// Document is a supporting publication. Documents are deduplicated by ID if
// present, else by DOI, else by PMID.
type Document struct {
	ID       string `json:"id,omitempty"`
	DOI      string `json:"doi,omitempty"`
	PMID     string `json:"pmid,omitempty"`
	Title    string `json:"title,omitempty"`
	Citation string `json:"citation,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Key returns the deduplication key for a document.
func (d Document) Key() string {
	switch {
	case d.ID != "":
		return d.ID
	case d.DOI != "":
		return "doi:" + d.DOI
	case d.PMID != "":
		return "pmid:" + d.PMID
	default:
		return ""
	}
}

// EvidenceLine wraps sub-statements with a direction of support. Statements
// form a DAG referenced by ID, never embedded by value.
type EvidenceLine struct {
	DirectionOfSupport Direction `json:"direction_of_support"`
	StatementIDs       []string  `json:"statement_ids"`
}

// Proposition is the structured content of a statement: predicate + subject
// variant + object + qualifiers. For therapeutic-response propositions the
// object is the therapeutic and ConditionID qualifies the tumor context; for
// diagnostic and prognostic propositions ConditionID is the object.
type Proposition struct {
	Type                  PropositionType `json:"type"`
	Predicate             Predicate       `json:"predicate"`
	SubjectVariantID      string          `json:"subject_variant_id"`
	ObjectTherapeutic     *Therapeutic    `json:"object_therapeutic,omitempty"`
	ConditionID           string          `json:"condition_id,omitempty"`
	GeneContextID         string          `json:"gene_context_id,omitempty"`
	AlleleOriginQualifier string          `json:"allele_origin_qualifier,omitempty"` // somatic, germline

	// Resolved entity objects, attached by the graph repository when a
	// statement is read back. The interchange bundle carries only the IDs.
	SubjectVariant *CategoricalVariant `json:"subject_variant,omitempty"`
	GeneContext    *Gene               `json:"gene_context,omitempty"`
	Condition      *Condition          `json:"condition,omitempty"`
}

// Statement is a canonical claim relating a variant to a clinical outcome.
// StrengthProvenance maps the shared strength concept back to the source's
// own evidence-level vocabulary.
type Statement struct {
	ID                 string         `json:"id"` // source-qualified, e.g. civic.eid:123
	Description        string         `json:"description,omitempty"`
	Direction          Direction      `json:"direction"`
	Strength           *Coding        `json:"strength,omitempty"`
	StrengthProvenance *Mapping       `json:"strength_provenance,omitempty"`
	Proposition        Proposition    `json:"proposition"`
	MethodID           string         `json:"method_id,omitempty"`
	DocumentIDs        []string       `json:"document_ids,omitempty"`
	EvidenceLines      []EvidenceLine `json:"evidence_lines,omitempty"`

	// Resolved method and documents, attached on read like the nested
	// proposition entities.
	Method    *Method    `json:"method,omitempty"`
	Documents []Document `json:"documents,omitempty"`
}

// TransformedData is the canonical interchange bundle emitted by one
// transform run and consumed by the graph repository loader.
type TransformedData struct {
	StatementsEvidence   []Statement          `json:"statements_evidence"`
	StatementsAssertions []Statement          `json:"statements_assertions"`
	CategoricalVariants  []CategoricalVariant `json:"categorical_variants"`
	Variations           []Allele             `json:"variations"`
	Genes                []Gene               `json:"genes"`
	Therapies            []Therapeutic        `json:"therapies"`
	Conditions           []Condition          `json:"conditions"`
	Methods              []Method             `json:"methods"`
	Documents            []Document           `json:"documents"`
}

// ExtensionValue returns the value of the named extension, or nil.
func ExtensionValue(exts []Extension, name string) any {
	for _, e := range exts {
		if e.Name == name {
			return e.Value
		}
	}
	return nil
}

// NormalizerFailed reports whether an entity carries the failure marker set
// when its source concept could not be normalized.
func NormalizerFailed(exts []Extension) bool {
	v, ok := ExtensionValue(exts, ExtFailure).(bool)
	return ok && v
}

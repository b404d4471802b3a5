// Package transform converts one source's harvested record set into the
// canonical knowledge model: statements, categorical variants, genes,
// conditions, therapeutics, methods, and documents. Every referenced concept
// is resolved against the external normalization services exactly once per
// run, and statements that reference anything unresolved are dropped rather
// than emitted.
package transform

// Source names with transform support.
const (
	SourceCIViC = "civic"
	SourceMOA   = "moa"
)

// SourceHarvest is one source's harvested record set, already fetched by an
// external harvester.
type SourceHarvest struct {
	Source     string         `json:"source"`
	Genes      []RawGene      `json:"genes"`
	Variants   []RawVariant   `json:"variants"`
	Evidence   []RawEvidence  `json:"evidence"`
	Assertions []RawAssertion `json:"assertions"`
}

// RawGene is a source gene record.
type RawGene struct {
	ID      string   `json:"id"` // source-qualified, e.g. civic.gid:5
	Symbol  string   `json:"symbol"`
	Aliases []string `json:"aliases,omitempty"`
}

// RawVariant is a source variant record.
type RawVariant struct {
	ID          string `json:"id"` // source-qualified, e.g. civic.vid:12
	Name        string `json:"name"`
	GeneID      string `json:"gene_id"`
	HGVSCoding  string `json:"hgvs_coding,omitempty"`
	HGVSGenomic string `json:"hgvs_genomic,omitempty"`
	HGVSProtein string `json:"hgvs_protein,omitempty"`
}

// RawTherapy is a therapy named by an evidence record.
type RawTherapy struct {
	ID     string `json:"id"` // source-qualified, e.g. civic.tid:4
	Name   string `json:"name"`
	NCItID string `json:"ncit_id,omitempty"`
}

// RawDisease is a disease named by an evidence record.
type RawDisease struct {
	ID   string `json:"id"` // source-qualified, e.g. civic.did:11
	Name string `json:"name"`
	DOID string `json:"doid,omitempty"`
}

// RawDocument is a supporting publication reference.
type RawDocument struct {
	ID       string `json:"id,omitempty"`
	PMID     string `json:"pmid,omitempty"`
	DOI      string `json:"doi,omitempty"`
	Title    string `json:"title,omitempty"`
	Citation string `json:"citation,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Evidence type discriminators used by sources.
const (
	EvidenceTypePredictive = "PREDICTIVE"
	EvidenceTypeDiagnostic = "DIAGNOSTIC"
	EvidenceTypePrognostic = "PROGNOSTIC"
)

// Therapy interaction types used by sources naming multiple therapies.
const (
	InteractionSubstitutes = "SUBSTITUTES"
	InteractionCombination = "COMBINATION"
)

// RawEvidence is one evidence item asserting a variant-outcome relationship.
type RawEvidence struct {
	ID                     string       `json:"id"` // source-qualified, e.g. civic.eid:123
	Description            string       `json:"description,omitempty"`
	VariantID              string       `json:"variant_id"`
	Disease                *RawDisease  `json:"disease,omitempty"`
	Therapies              []RawTherapy `json:"therapies,omitempty"`
	TherapyInteractionType string       `json:"therapy_interaction_type,omitempty"`
	EvidenceType           string       `json:"evidence_type"`
	EvidenceLevel          string       `json:"evidence_level"`
	Significance           string       `json:"significance"`
	EvidenceDirection      string       `json:"evidence_direction"`
	AlleleOrigin           string       `json:"allele_origin,omitempty"`
	Document               *RawDocument `json:"document,omitempty"`
}

// RawAssertion is a curated assertion aggregating evidence items.
type RawAssertion struct {
	RawEvidence
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

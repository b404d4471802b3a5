package transform

import (
	"strings"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/engine/normalize"
)

// unsupportedVariantTerms mark variant classes the variation normalizer
// cannot represent as a single allele. Variants whose name contains one of
// these are recorded as unnormalized without a service round trip.
var unsupportedVariantTerms = []string{
	"fusion",
	"amplification",
	"copy number",
	"exon",
	"frameshift",
	"expression",
	"deletion",
	"duplication",
	"loss",
	"methylation",
	"rearrangement",
	"truncation",
	"wild type",
	"wildtype",
	"mutation",
	"phosphorylation",
	"splice",
}

// supportedVariantName reports whether a variant name looks like something
// the variation normalizer can resolve to an allele.
func supportedVariantName(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range unsupportedVariantTerms {
		if strings.Contains(lower, term) {
			return false
		}
	}
	return true
}

// variantQueries builds the ordered candidate queries for one variant:
// protein HGVS first (most specific for the normalizer), then coding HGVS,
// then the free-text "SYMBOL Name" form.
func variantQueries(symbol string, v RawVariant) []string {
	queries := []string{v.HGVSProtein, v.HGVSCoding}
	if symbol != "" && v.Name != "" {
		queries = append(queries, symbol+" "+v.Name)
	}
	return queries
}

// alleleDigest extracts the digest portion of a ga4gh identifier, e.g.
// "ga4gh:VA.abc123" -> "abc123". Non-ga4gh IDs are digested directly.
func alleleDigest(id string) string {
	if idx := strings.LastIndexByte(id, '.'); idx != -1 && strings.HasPrefix(id, "ga4gh:") {
		return id[idx+1:]
	}
	return domain.AlleleDigest(id)
}

// alleleFromMatch builds an Allele from a variation normalizer match,
// attaching the source expressions that produced it.
func alleleFromMatch(m *normalize.Match, exprs []domain.Expression) domain.Allele {
	return domain.Allele{
		ID:          m.ID,
		Digest:      alleleDigest(m.ID),
		Label:       m.Label,
		Expressions: exprs,
	}
}

// variantExpressions collects the HGVS renderings present on a raw variant.
func variantExpressions(v RawVariant) []domain.Expression {
	var exprs []domain.Expression
	if v.HGVSCoding != "" {
		exprs = append(exprs, domain.Expression{Syntax: "hgvs.c", Value: v.HGVSCoding})
	}
	if v.HGVSGenomic != "" {
		exprs = append(exprs, domain.Expression{Syntax: "hgvs.g", Value: v.HGVSGenomic})
	}
	if v.HGVSProtein != "" {
		exprs = append(exprs, domain.Expression{Syntax: "hgvs.p", Value: v.HGVSProtein})
	}
	return exprs
}

package transform

import (
	"strings"

	"github.com/varikb/varikb/engine/domain"
)

// civicLevels maps CIViC's A-E evidence ladder onto the shared strength
// taxonomy.
var civicLevels = map[string]domain.Coding{
	"A": domain.StrengthAuthoritative,
	"B": domain.StrengthClinicalCohort,
	"C": domain.StrengthCaseStudy,
	"D": domain.StrengthPreclinical,
	"E": domain.StrengthInferential,
}

// moaLevels maps MOAlmanac's predictive implication levels onto the shared
// strength taxonomy.
var moaLevels = map[string]domain.Coding{
	"FDA-Approved":      domain.StrengthAuthoritative,
	"Guideline":         domain.StrengthAuthoritative,
	"Clinical trial":    domain.StrengthClinicalCohort,
	"Clinical evidence": domain.StrengthCaseStudy,
	"Preclinical":       domain.StrengthPreclinical,
	"Inferential":       domain.StrengthInferential,
}

// strengthFor maps a source evidence level to the shared strength coding and
// a provenance mapping back to the source's own vocabulary. Unknown levels
// return ok=false and the statement is emitted without a strength.
func strengthFor(source, level string) (*domain.Coding, *domain.Mapping, bool) {
	if level == "" {
		return nil, nil, false
	}
	var (
		coding domain.Coding
		ok     bool
	)
	switch source {
	case SourceCIViC:
		coding, ok = civicLevels[strings.ToUpper(level)]
	case SourceMOA:
		coding, ok = moaLevels[level]
	}
	if !ok {
		return nil, nil, false
	}
	prov := domain.Mapping{
		Coding:   domain.Coding{ID: source + ".evidence_level:" + level, Label: level, System: source},
		Relation: "exactMatch",
	}
	return &coding, &prov, true
}

// Package query resolves user-facing search terms to canonical concept IDs
// and answers statement searches against the graph repository. It is the
// only layer that accepts free text from end users.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/engine/graph"
	"github.com/varikb/varikb/engine/normalize"
	"github.com/varikb/varikb/pkg/fn"
)

// Repo is the slice of the graph store the query engine needs.
type Repo interface {
	SearchStatements(ctx context.Context, f graph.StatementFilter, p graph.Page) ([]string, error)
	GetStatements(ctx context.Context, ids []string) ([]domain.Statement, error)
}

// Service answers concept searches. It holds no per-request state.
type Service struct {
	repo        Repo
	normalizers map[normalize.Kind]normalize.Normalizer
	log         *slog.Logger
}

// NewService creates a query service. Normalizers for the kinds that appear
// in queries (gene, disease, therapy, variation) must be provided.
func NewService(repo Repo, log *slog.Logger, normalizers ...normalize.Normalizer) *Service {
	byKind := make(map[normalize.Kind]normalize.Normalizer, len(normalizers))
	for _, n := range normalizers {
		byKind[n.Kind()] = n
	}
	return &Service{repo: repo, normalizers: byKind, log: log}
}

// Query carries the raw search terms exactly as the caller supplied them:
// free text or canonical IDs, any non-empty combination.
type Query struct {
	Variation   string
	Disease     string
	Therapy     string
	Gene        string
	StatementID string
	Start       int
	Limit       int
}

func (q Query) empty() bool {
	return q.Variation == "" && q.Disease == "" && q.Therapy == "" && q.Gene == "" && q.StatementID == ""
}

// terms returns the provided term/kind pairs in a fixed order.
func (q Query) terms() []term {
	var out []term
	if q.Variation != "" {
		out = append(out, term{kind: normalize.KindVariation, value: q.Variation})
	}
	if q.Disease != "" {
		out = append(out, term{kind: normalize.KindDisease, value: q.Disease})
	}
	if q.Therapy != "" {
		out = append(out, term{kind: normalize.KindTherapy, value: q.Therapy})
	}
	if q.Gene != "" {
		out = append(out, term{kind: normalize.KindGene, value: q.Gene})
	}
	return out
}

type term struct {
	kind  normalize.Kind
	value string
}

// Resolution records how one query term resolved.
type Resolution struct {
	Term       string `json:"term"`
	Kind       string `json:"kind"`
	ResolvedID string `json:"resolved_id,omitempty"`
	OK         bool   `json:"ok"`
}

// Result is a statement search response: the echoed query, per-term
// warnings, matching statement IDs, and the statements grouped by
// proposition type.
type Result struct {
	Query                         map[string]string  `json:"query"`
	Warnings                      []string           `json:"warnings,omitempty"`
	StatementIDs                  []string           `json:"statement_ids"`
	TherapeuticResponseStatements []domain.Statement `json:"therapeutic_response_statements"`
	DiagnosticStatements          []domain.Statement `json:"diagnostic_statements"`
	PrognosticStatements          []domain.Statement `json:"prognostic_statements"`
}

// isCanonicalVariationID reports whether the term is already a canonical
// variation identifier, which skips the normalizer round trip.
func isCanonicalVariationID(s string) bool {
	return strings.HasPrefix(s, "ga4gh:")
}

// resolve maps one term to a canonical ID via the matching normalizer.
func (s *Service) resolve(ctx context.Context, t term) Resolution {
	res := Resolution{Term: t.value, Kind: string(t.kind)}
	if t.kind == normalize.KindVariation && isCanonicalVariationID(t.value) {
		res.ResolvedID = t.value
		res.OK = true
		return res
	}
	n, ok := s.normalizers[t.kind]
	if !ok {
		return res
	}
	match, err := n.Normalize(ctx, []string{t.value})
	if err != nil || match == nil {
		return res
	}
	res.ResolvedID = match.ID
	res.OK = true
	return res
}

// SearchStatements resolves every term, short-circuits to an empty result
// when any term fails (never a partial match), and otherwise returns the
// intersection of statements matching all terms.
func (s *Service) SearchStatements(ctx context.Context, q Query) (*Result, error) {
	if q.empty() {
		return nil, domain.ErrEmptyQuery
	}
	if err := domain.ValidatePage(q.Start, q.Limit); err != nil {
		return nil, err
	}

	result := &Result{
		Query:        q.echo(),
		StatementIDs: []string{},
	}

	filter := graph.StatementFilter{StatementID: q.StatementID}
	for _, t := range q.terms() {
		res := s.resolve(ctx, t)
		if !res.OK {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("unable to normalize %s: %q", res.Kind, res.Term))
			continue
		}
		switch t.kind {
		case normalize.KindVariation:
			filter.VariationID = res.ResolvedID
		case normalize.KindDisease:
			filter.ConditionID = res.ResolvedID
		case normalize.KindTherapy:
			filter.TherapyID = res.ResolvedID
		case normalize.KindGene:
			filter.GeneID = res.ResolvedID
		}
	}
	if len(result.Warnings) > 0 {
		s.log.Info("search short-circuited on unresolved terms", "warnings", result.Warnings)
		return result, nil
	}

	ids, err := s.repo.SearchStatements(ctx, filter, graph.Page{Start: q.Start, Limit: q.Limit})
	if err != nil {
		return nil, err
	}
	statements, err := s.repo.GetStatements(ctx, ids)
	if err != nil {
		return nil, err
	}

	if ids != nil {
		result.StatementIDs = ids
	}
	s.groupByProposition(result, statements)
	return result, nil
}

func (q Query) echo() map[string]string {
	out := make(map[string]string)
	if q.Variation != "" {
		out["variation"] = q.Variation
	}
	if q.Disease != "" {
		out["disease"] = q.Disease
	}
	if q.Therapy != "" {
		out["therapy"] = q.Therapy
	}
	if q.Gene != "" {
		out["gene"] = q.Gene
	}
	if q.StatementID != "" {
		out["statement_id"] = q.StatementID
	}
	return out
}

// groupByProposition buckets statements by their claim type. The switch is
// exhaustive: an unknown type is a data-model mismatch and panics.
func (s *Service) groupByProposition(result *Result, statements []domain.Statement) {
	result.TherapeuticResponseStatements = []domain.Statement{}
	result.DiagnosticStatements = []domain.Statement{}
	result.PrognosticStatements = []domain.Statement{}
	for _, st := range statements {
		switch st.Proposition.Type {
		case domain.PropositionTherapeuticResponse:
			result.TherapeuticResponseStatements = append(result.TherapeuticResponseStatements, st)
		case domain.PropositionDiagnostic:
			result.DiagnosticStatements = append(result.DiagnosticStatements, st)
		case domain.PropositionPrognostic:
			result.PrognosticStatements = append(result.PrognosticStatements, st)
		default:
			panic(domain.ErrUnsupportedProposition)
		}
	}
}

// BatchResult is a batch variation search response.
type BatchResult struct {
	SearchTerms  []Resolution       `json:"search_terms"`
	StatementIDs []string           `json:"statement_ids"`
	Statements   []domain.Statement `json:"statements"`
}

// BatchSearchStatements resolves a list of variation descriptions (canonical
// IDs and free text may be mixed), deduplicates the resolved IDs, and
// returns the union of statements naming any of them. Pagination applies
// after deduplication, over the sorted union.
func (s *Service) BatchSearchStatements(ctx context.Context, variations []string, start, limit int) (*BatchResult, error) {
	if len(variations) == 0 {
		return nil, domain.ErrEmptyQuery
	}
	if err := domain.ValidatePage(start, limit); err != nil {
		return nil, err
	}

	result := &BatchResult{StatementIDs: []string{}, Statements: []domain.Statement{}}

	for _, v := range variations {
		result.SearchTerms = append(result.SearchTerms,
			s.resolve(ctx, term{kind: normalize.KindVariation, value: v}))
	}
	resolved := fn.Unique(fn.FilterMap(result.SearchTerms, func(r Resolution) (string, bool) {
		return r.ResolvedID, r.OK
	}))

	idSet := make(map[string]struct{})
	for _, vid := range resolved {
		ids, err := s.repo.SearchStatements(ctx, graph.StatementFilter{VariationID: vid}, graph.Page{})
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			idSet[id] = struct{}{}
		}
	}

	union := make([]string, 0, len(idSet))
	for id := range idSet {
		union = append(union, id)
	}
	sort.Strings(union)

	page := paginate(union, start, limit)
	statements, err := s.repo.GetStatements(ctx, page)
	if err != nil {
		return nil, err
	}
	result.StatementIDs = page
	if statements != nil {
		result.Statements = statements
	}
	return result, nil
}

func paginate(ids []string, start, limit int) []string {
	if start >= len(ids) {
		return []string{}
	}
	end := len(ids)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return ids[start:end]
}

package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/engine/graph"
	"github.com/varikb/varikb/engine/normalize"
)

type fakeNormalizer struct {
	kind  normalize.Kind
	table map[string]*normalize.Match
	calls int
}

func (f *fakeNormalizer) Kind() normalize.Kind { return f.kind }

func (f *fakeNormalizer) Normalize(_ context.Context, queries []string) (*normalize.Match, error) {
	f.calls++
	for _, q := range queries {
		if m, ok := f.table[q]; ok {
			return m, nil
		}
	}
	return nil, nil
}

type fakeRepo struct {
	search      func(f graph.StatementFilter) []string
	statements  map[string]domain.Statement
	searchCalls int
	lastFilter  graph.StatementFilter
}

func (f *fakeRepo) SearchStatements(_ context.Context, filter graph.StatementFilter, _ graph.Page) ([]string, error) {
	f.searchCalls++
	f.lastFilter = filter
	if f.search == nil {
		return nil, nil
	}
	return f.search(filter), nil
}

func (f *fakeRepo) GetStatements(_ context.Context, ids []string) ([]domain.Statement, error) {
	var out []domain.Statement
	for _, id := range ids {
		st, ok := f.statements[id]
		if !ok {
			return nil, errors.New("statement " + id + " not found")
		}
		out = append(out, st)
	}
	return out, nil
}

func statement(id string, pt domain.PropositionType) domain.Statement {
	return domain.Statement{
		ID:        id,
		Direction: domain.DirectionSupports,
		Proposition: domain.Proposition{
			Type:             pt,
			SubjectVariantID: "civic.vid:33",
		},
	}
}

func newTestService(repo *fakeRepo) (*Service, *fakeNormalizer, *fakeNormalizer) {
	variation := &fakeNormalizer{kind: normalize.KindVariation, table: map[string]*normalize.Match{
		"BRAF V600E":              {ID: "ga4gh:VA.v600e", Label: "BRAF V600E"},
		"NP_004324.2:p.Val600Glu": {ID: "ga4gh:VA.v600e", Label: "BRAF V600E"},
	}}
	gene := &fakeNormalizer{kind: normalize.KindGene, table: map[string]*normalize.Match{
		"BRAF": {ID: "hgnc:1097", Label: "BRAF"},
	}}
	disease := &fakeNormalizer{kind: normalize.KindDisease, table: map[string]*normalize.Match{
		"melanoma": {ID: "ncit:C3224", Label: "Melanoma"},
	}}
	therapy := &fakeNormalizer{kind: normalize.KindTherapy, table: map[string]*normalize.Match{}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, log, variation, gene, disease, therapy), variation, gene
}

func TestSearchStatementsIntersection(t *testing.T) {
	repo := &fakeRepo{
		search: func(f graph.StatementFilter) []string {
			if f.VariationID == "ga4gh:VA.v600e" && f.GeneID == "hgnc:1097" {
				return []string{"civic.eid:1"}
			}
			return []string{"civic.eid:1", "civic.eid:2"}
		},
		statements: map[string]domain.Statement{
			"civic.eid:1": statement("civic.eid:1", domain.PropositionTherapeuticResponse),
			"civic.eid:2": statement("civic.eid:2", domain.PropositionPrognostic),
		},
	}
	svc, _, _ := newTestService(repo)

	result, err := svc.SearchStatements(context.Background(), Query{Variation: "BRAF V600E", Gene: "BRAF"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	if len(result.StatementIDs) != 1 || result.StatementIDs[0] != "civic.eid:1" {
		t.Fatalf("ids = %v", result.StatementIDs)
	}
	if len(result.TherapeuticResponseStatements) != 1 {
		t.Errorf("therapeutic group = %+v", result.TherapeuticResponseStatements)
	}
	if len(result.PrognosticStatements) != 0 {
		t.Errorf("prognostic group = %+v", result.PrognosticStatements)
	}
}

func TestSearchShortCircuitsOnUnresolvedTerm(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newTestService(repo)

	result, err := svc.SearchStatements(context.Background(), Query{
		Variation: "BRAF V600E",
		Disease:   "no such disease",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	if len(result.StatementIDs) != 0 {
		t.Errorf("ids = %v, want none", result.StatementIDs)
	}
	if repo.searchCalls != 0 {
		t.Errorf("graph queried despite unresolved term")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc, _, _ := newTestService(&fakeRepo{})
	if _, err := svc.SearchStatements(context.Background(), Query{}); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("err = %v", err)
	}
}

func TestSearchRejectsNegativePagination(t *testing.T) {
	svc, _, _ := newTestService(&fakeRepo{})
	_, err := svc.SearchStatements(context.Background(), Query{Gene: "BRAF", Start: -1})
	if !errors.Is(err, domain.ErrInvalidPagination) {
		t.Fatalf("err = %v", err)
	}
}

func TestCanonicalVariationSkipsNormalizer(t *testing.T) {
	repo := &fakeRepo{}
	svc, variation, _ := newTestService(repo)

	_, err := svc.SearchStatements(context.Background(), Query{Variation: "ga4gh:VA.v600e"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if variation.calls != 0 {
		t.Errorf("normalizer called %d times for canonical ID", variation.calls)
	}
	if repo.lastFilter.VariationID != "ga4gh:VA.v600e" {
		t.Errorf("filter = %+v", repo.lastFilter)
	}
}

func TestGroupByPropositionPanicsOnUnknownType(t *testing.T) {
	svc, _, _ := newTestService(&fakeRepo{})
	defer func() {
		if recover() == nil {
			t.Error("unknown proposition type must panic")
		}
	}()
	svc.groupByProposition(&Result{}, []domain.Statement{statement("x", domain.PropositionType("Bogus"))})
}

func TestBatchSearchDeduplicatesTerms(t *testing.T) {
	repo := &fakeRepo{
		search: func(f graph.StatementFilter) []string {
			if f.VariationID == "ga4gh:VA.v600e" {
				return []string{"civic.eid:1", "civic.eid:2"}
			}
			return nil
		},
		statements: map[string]domain.Statement{
			"civic.eid:1": statement("civic.eid:1", domain.PropositionTherapeuticResponse),
			"civic.eid:2": statement("civic.eid:2", domain.PropositionTherapeuticResponse),
		},
	}
	svc, _, _ := newTestService(repo)

	// Two descriptions of the same variant count once.
	both, err := svc.BatchSearchStatements(context.Background(),
		[]string{"BRAF V600E", "NP_004324.2:p.Val600Glu"}, 0, 0)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if repo.searchCalls != 1 {
		t.Errorf("graph queried %d times, want 1 after dedup", repo.searchCalls)
	}

	repo.searchCalls = 0
	one, err := svc.BatchSearchStatements(context.Background(), []string{"BRAF V600E"}, 0, 0)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(both.StatementIDs) != len(one.StatementIDs) {
		t.Errorf("dedup changed result: %v vs %v", both.StatementIDs, one.StatementIDs)
	}
}

func TestBatchSearchPaginatesAfterDedup(t *testing.T) {
	repo := &fakeRepo{
		search: func(f graph.StatementFilter) []string {
			switch f.VariationID {
			case "ga4gh:VA.v600e":
				return []string{"civic.eid:3", "civic.eid:1"}
			case "ga4gh:VA.other":
				return []string{"civic.eid:2", "civic.eid:1"}
			}
			return nil
		},
		statements: map[string]domain.Statement{
			"civic.eid:1": statement("civic.eid:1", domain.PropositionTherapeuticResponse),
			"civic.eid:2": statement("civic.eid:2", domain.PropositionTherapeuticResponse),
			"civic.eid:3": statement("civic.eid:3", domain.PropositionTherapeuticResponse),
		},
	}
	svc, _, _ := newTestService(repo)

	result, err := svc.BatchSearchStatements(context.Background(),
		[]string{"ga4gh:VA.v600e", "ga4gh:VA.other"}, 1, 1)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	// Union is {eid:1, eid:2, eid:3}; page [1,1) of the sorted union.
	if len(result.StatementIDs) != 1 || result.StatementIDs[0] != "civic.eid:2" {
		t.Fatalf("ids = %v", result.StatementIDs)
	}
}

func TestBatchSearchRejectsEmptyList(t *testing.T) {
	svc, _, _ := newTestService(&fakeRepo{})
	if _, err := svc.BatchSearchStatements(context.Background(), nil, 0, 0); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("err = %v", err)
	}
}

func TestPaginate(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	cases := []struct {
		start, limit int
		want         []string
	}{
		{0, 0, []string{"a", "b", "c", "d"}},
		{1, 2, []string{"b", "c"}},
		{3, 10, []string{"d"}},
		{4, 1, []string{}},
	}
	for _, c := range cases {
		got := paginate(ids, c.start, c.limit)
		if len(got) != len(c.want) {
			t.Errorf("paginate(%d, %d) = %v, want %v", c.start, c.limit, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("paginate(%d, %d) = %v, want %v", c.start, c.limit, got, c.want)
			}
		}
	}
}

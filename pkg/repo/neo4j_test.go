package repo

import (
	"context"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// recordingRunner captures cypher and params without a live database.
type recordingRunner struct {
	cypher string
	params map[string]any
}

func (r *recordingRunner) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	r.cypher = cypher
	r.params = params
	return emptyResult{}, nil
}

func (r *recordingRunner) Close(context.Context) error { return nil }

type emptyResult struct{}

func (emptyResult) Next(context.Context) bool { return false }
func (emptyResult) Record() *neo4j.Record     { return nil }

type thing struct{ ID, Name string }

func newTestRepo(run *recordingRunner) *Neo4jRepo[thing, string] {
	r := NewNeo4jRepo[thing, string](nil, "Thing",
		func(t thing) map[string]any { return map[string]any{"id": t.ID, "name": t.Name} },
		func(*neo4j.Record) (thing, error) { return thing{}, nil },
	)
	r.newSession = func(context.Context) runner { return run }
	return r
}

func TestMergeUsesMergeKeyedOnID(t *testing.T) {
	run := &recordingRunner{}
	repo := newTestRepo(run)

	if err := repo.Merge(context.Background(), thing{ID: "x1", Name: "n"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(run.cypher, "MERGE (n:Thing {id: $id})") {
		t.Fatalf("cypher is not an id-keyed merge: %s", run.cypher)
	}
	if run.params["id"] != "x1" {
		t.Fatalf("params missing id: %v", run.params)
	}
}

func TestListOrdersByID(t *testing.T) {
	run := &recordingRunner{}
	repo := newTestRepo(run)

	if _, err := repo.List(context.Background(), ListOpts{Offset: 10, Limit: 5}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(run.cypher, "ORDER BY n.id") {
		t.Fatalf("list has no stable ordering: %s", run.cypher)
	}
	if run.params["offset"] != 10 || run.params["limit"] != 5 {
		t.Fatalf("pagination params wrong: %v", run.params)
	}
}

func TestDeleteDetaches(t *testing.T) {
	run := &recordingRunner{}
	repo := newTestRepo(run)

	if err := repo.Delete(context.Background(), "x1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(run.cypher, "DETACH DELETE") {
		t.Fatalf("delete should detach: %s", run.cypher)
	}
}

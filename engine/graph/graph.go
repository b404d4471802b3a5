package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/pkg/repo"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// txRunner runs cypher inside a session or a managed transaction.
type txRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
}

// session is the minimal interface needed from a neo4j session.
type session interface {
	txRunner
	WriteTx(ctx context.Context, work func(tx txRunner) error) error
	Close(ctx context.Context) error
}

// entityRepo is the slice of pkg/repo used for method and document nodes.
type entityRepo[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Merge(ctx context.Context, entity T) error
}

// Store persists canonical bundles into Neo4j and answers statement
// searches. One session is opened per operation and closed on return.
type Store struct {
	driver    neo4j.DriverWithContext
	log       *slog.Logger
	methods   entityRepo[domain.Method]
	documents entityRepo[domain.Document]

	newSession func(ctx context.Context) session // for testing
}

// New creates a Store on an established driver.
func New(driver neo4j.DriverWithContext, log *slog.Logger) *Store {
	return &Store{
		driver:    driver,
		log:       log,
		methods:   repo.NewNeo4jRepo[domain.Method, string](driver, labelMethod, methodProps, methodFromRecord),
		documents: repo.NewNeo4jRepo[domain.Document, string](driver, labelDocument, documentProps, documentFromRecord),
	}
}

type neo4jSession struct {
	sess neo4j.SessionWithContext
}

func (s *neo4jSession) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *neo4jSession) WriteTx(ctx context.Context, work func(tx txRunner) error) error {
	_, err := s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(managedTx{tx})
	})
	return err
}

func (s *neo4jSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

type managedTx struct {
	tx neo4j.ManagedTransaction
}

func (m managedTx) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return m.tx.Run(ctx, cypher, params)
}

func (s *Store) session(ctx context.Context) session {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &neo4jSession{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// AddTransformedData loads one canonical bundle. Entities are merged first
// in dependency order, then each loadable statement is written in its own
// transaction together with all its edges, so a statement is never linked
// to a node that does not exist yet. Every write is a MERGE keyed on
// canonical ID: loading the same bundle twice is a no-op beyond the first.
func (s *Store) AddTransformedData(ctx context.Context, data *domain.TransformedData) error {
	ix := domain.NewEntityIndex(data)

	sess := s.session(ctx)
	defer sess.Close(ctx)

	if err := sess.WriteTx(ctx, func(tx txRunner) error {
		return s.mergeEntities(ctx, tx, data)
	}); err != nil {
		return fmt.Errorf("merge entities: %w", err)
	}

	for _, d := range data.Documents {
		if err := s.documents.Merge(ctx, d); err != nil {
			return fmt.Errorf("merge document %s: %w", d.ID, err)
		}
	}
	for _, m := range data.Methods {
		if err := s.methods.Merge(ctx, m); err != nil {
			return fmt.Errorf("merge method %s: %w", m.ID, err)
		}
	}

	for _, group := range [][]domain.Statement{data.StatementsEvidence, data.StatementsAssertions} {
		for i := range group {
			st := &group[i]
			if !ix.Loadable(st) {
				s.log.Warn("skipping unloadable statement", "statement_id", st.ID)
				continue
			}
			if err := sess.WriteTx(ctx, func(tx txRunner) error {
				return writeStatement(ctx, tx, *st)
			}); err != nil {
				return fmt.Errorf("write statement %s: %w", st.ID, err)
			}
		}
	}
	return nil
}

func mergeNode(ctx context.Context, tx txRunner, label string, props map[string]any) error {
	cypher := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", label)
	_, err := tx.Run(ctx, cypher, map[string]any{"id": props["id"], "props": props})
	return err
}

func mergeEdge(ctx context.Context, tx txRunner, fromLabel, rel, toLabel string, fromID, toID string) error {
	cypher := fmt.Sprintf(
		"MATCH (a:%s {id: $from}), (b:%s {id: $to}) MERGE (a)-[:%s]->(b)",
		fromLabel, toLabel, rel,
	)
	_, err := tx.Run(ctx, cypher, map[string]any{"from": fromID, "to": toID})
	return err
}

func (s *Store) mergeEntities(ctx context.Context, tx txRunner, data *domain.TransformedData) error {
	for _, a := range data.Variations {
		if err := mergeNode(ctx, tx, labelVariation, alleleProps(a)); err != nil {
			return err
		}
	}
	for _, v := range data.CategoricalVariants {
		if err := mergeNode(ctx, tx, labelVariant, variantProps(v)); err != nil {
			return err
		}
		if v.DefiningAllele != nil {
			if err := mergeEdge(ctx, tx, labelVariant, relHasDefiningContext, labelVariation, v.ID, v.DefiningAllele.ID); err != nil {
				return err
			}
		}
		for _, m := range v.Members {
			if err := mergeEdge(ctx, tx, labelVariant, relHasMembers, labelVariation, v.ID, m.ID); err != nil {
				return err
			}
		}
	}
	for _, g := range data.Genes {
		if err := mergeNode(ctx, tx, labelGene, geneProps(g)); err != nil {
			return err
		}
	}
	for _, c := range data.Conditions {
		if err := mergeNode(ctx, tx, labelCondition, conditionProps(c)); err != nil {
			return err
		}
	}
	for _, th := range data.Therapies {
		if err := mergeTherapeutic(ctx, tx, th); err != nil {
			return err
		}
	}
	return nil
}

func mergeTherapeutic(ctx context.Context, tx txRunner, t domain.Therapeutic) error {
	if t.GroupType == "" {
		if t.Agent == nil {
			return domain.NewValidationError("agent", t.ID, domain.ErrInvalidTherapyGroup)
		}
		return mergeNode(ctx, tx, labelTherapy, therapyProps(*t.Agent))
	}

	props := map[string]any{"id": t.ID, "group_type": string(t.GroupType)}
	if err := mergeNode(ctx, tx, labelTherapyGrp, props); err != nil {
		return err
	}
	rel := memberRel(t.GroupType)
	for _, m := range t.Members {
		if err := mergeNode(ctx, tx, labelTherapy, therapyProps(m)); err != nil {
			return err
		}
		if err := mergeEdge(ctx, tx, labelTherapyGrp, rel, labelTherapy, t.ID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// writeStatement merges the statement node and every edge to its already
// present dependencies inside one transaction.
func writeStatement(ctx context.Context, tx txRunner, st domain.Statement) error {
	if err := mergeNode(ctx, tx, labelStatement, statementProps(st)); err != nil {
		return err
	}

	prop := st.Proposition
	if err := mergeEdge(ctx, tx, labelStatement, relHasVariant, labelVariant, st.ID, prop.SubjectVariantID); err != nil {
		return err
	}
	if prop.GeneContextID != "" {
		if err := mergeEdge(ctx, tx, labelStatement, relHasGeneContext, labelGene, st.ID, prop.GeneContextID); err != nil {
			return err
		}
	}
	if prop.ConditionID != "" {
		if err := mergeEdge(ctx, tx, labelStatement, relHasCondition, labelCondition, st.ID, prop.ConditionID); err != nil {
			return err
		}
	}
	if th := prop.ObjectTherapeutic; th != nil {
		if err := mergeEdge(ctx, tx, labelStatement, relHasTherapeutic, therapeuticLabel(*th), st.ID, th.ID); err != nil {
			return err
		}
	}
	if st.Strength != nil {
		cypher := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n.label = $label, n.system = $system", labelStrength)
		if _, err := tx.Run(ctx, cypher, map[string]any{
			"id": st.Strength.ID, "label": st.Strength.Label, "system": st.Strength.System,
		}); err != nil {
			return err
		}
		if err := mergeEdge(ctx, tx, labelStatement, relHasStrength, labelStrength, st.ID, st.Strength.ID); err != nil {
			return err
		}
	}
	if st.MethodID != "" {
		if err := mergeEdge(ctx, tx, labelStatement, relIsSpecifiedBy, labelMethod, st.ID, st.MethodID); err != nil {
			return err
		}
	}
	for _, docID := range st.DocumentIDs {
		if err := mergeEdge(ctx, tx, labelStatement, relIsReportedIn, labelDocument, st.ID, docID); err != nil {
			return err
		}
	}
	return nil
}

// StatementFilter selects statements by canonical entity IDs. Every set
// field must match (intersection). IDs may be either source-qualified node
// IDs or the normalizer's canonical IDs.
type StatementFilter struct {
	VariationID string
	GeneID      string
	ConditionID string
	TherapyID   string
	StatementID string
}

func (f StatementFilter) empty() bool {
	return f == StatementFilter{}
}

// Page is zero-based offset pagination. Limit zero means no cap.
type Page struct {
	Start int
	Limit int
}

// SearchStatements returns the IDs of statements matching every provided
// filter, in stable ID order.
func (s *Store) SearchStatements(ctx context.Context, f StatementFilter, page Page) ([]string, error) {
	if f.empty() {
		return nil, domain.ErrEmptyQuery
	}
	if err := domain.ValidatePage(page.Start, page.Limit); err != nil {
		return nil, err
	}

	cypher, params := searchCypher(f, page)

	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("search statements: %w", err)
	}
	var ids []string
	for res.Next(ctx) {
		if v, ok := res.Record().Get("id"); ok {
			if id, ok := v.(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// searchCypher builds the intersection query. A therapy filter matches a
// standalone agent, a group node, or any member of a group, so combination
// statements stay discoverable by each component.
func searchCypher(f StatementFilter, page Page) (string, map[string]any) {
	var b strings.Builder
	params := map[string]any{"start": page.Start}

	b.WriteString("MATCH (s:" + labelStatement + ")\n")
	if f.StatementID != "" {
		b.WriteString("WHERE s.id = $statement_id\n")
		params["statement_id"] = f.StatementID
	}
	if f.VariationID != "" {
		b.WriteString("MATCH (s)-[:" + relHasVariant + "]->(v:" + labelVariant + ")\n")
		b.WriteString("WHERE v.id = $variation OR v.normalizer_id = $variation OR EXISTS {\n")
		b.WriteString("  MATCH (v)-[:" + relHasDefiningContext + "|" + relHasMembers + "]->(:" + labelVariation + " {id: $variation})\n")
		b.WriteString("}\n")
		params["variation"] = f.VariationID
	}
	if f.GeneID != "" {
		b.WriteString("MATCH (s)-[:" + relHasGeneContext + "]->(g:" + labelGene + ")\n")
		b.WriteString("WHERE g.id = $gene OR g.normalizer_id = $gene\n")
		params["gene"] = f.GeneID
	}
	if f.ConditionID != "" {
		b.WriteString("MATCH (s)-[:" + relHasCondition + "]->(c:" + labelCondition + ")\n")
		b.WriteString("WHERE c.id = $condition OR c.normalizer_id = $condition\n")
		params["condition"] = f.ConditionID
	}
	if f.TherapyID != "" {
		b.WriteString("MATCH (s)-[:" + relHasTherapeutic + "]->(t)\n")
		b.WriteString("WHERE t.id = $therapy OR t.normalizer_id = $therapy OR EXISTS {\n")
		b.WriteString("  MATCH (t)-[:" + relHasComponents + "|" + relHasSubstitutes + "]->(m:" + labelTherapy + ")\n")
		b.WriteString("  WHERE m.id = $therapy OR m.normalizer_id = $therapy\n")
		b.WriteString("}\n")
		params["therapy"] = f.TherapyID
	}
	b.WriteString("RETURN DISTINCT s.id AS id ORDER BY id SKIP $start")
	if page.Limit > 0 {
		b.WriteString(" LIMIT $limit")
		params["limit"] = page.Limit
	}
	return b.String(), params
}

// GetStatement reconstructs one statement with every nested entity it
// references: variant (defining allele and members), gene, condition,
// therapeutic (with group members), strength, method, and documents.
func (s *Store) GetStatement(ctx context.Context, id string) (domain.Statement, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)
	return s.getStatement(ctx, sess, id)
}

// GetStatements reconstructs the given statements plus, transitively, every
// evidence-line sub-statement they reference. The visited set both
// deduplicates and guards against reference cycles.
func (s *Store) GetStatements(ctx context.Context, ids []string) ([]domain.Statement, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	visited := make(map[string]bool)
	var out []domain.Statement
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		st, err := s.getStatement(ctx, sess, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
		for _, line := range st.EvidenceLines {
			queue = append(queue, line.StatementIDs...)
		}
	}
	return out, nil
}

// getStatement rebuilds the statement node, then resolves every referenced
// entity from its own nodes. Loadability at write time guarantees the
// referenced nodes exist, so a missing one is an error, not a degraded
// result.
func (s *Store) getStatement(ctx context.Context, sess session, id string) (domain.Statement, error) {
	var zero domain.Statement
	res, err := sess.Run(ctx, "MATCH (n:"+labelStatement+" {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return zero, fmt.Errorf("get statement %s: %w", id, err)
	}
	if !res.Next(ctx) {
		return zero, fmt.Errorf("statement %s not found", id)
	}
	node, _, err := neo4j.GetRecordValue[dbtype.Node](res.Record(), "n")
	if err != nil {
		return zero, err
	}
	st := statementFromProps(node.Props)

	if vid := st.Proposition.SubjectVariantID; vid != "" {
		v, err := getVariant(ctx, sess, vid)
		if err != nil {
			return zero, err
		}
		st.Proposition.SubjectVariant = v
	}
	if gid := st.Proposition.GeneContextID; gid != "" {
		props, err := getNodeProps(ctx, sess, labelGene, gid)
		if err != nil {
			return zero, err
		}
		g := geneFromProps(props)
		st.Proposition.GeneContext = &g
	}
	if cid := st.Proposition.ConditionID; cid != "" {
		props, err := getNodeProps(ctx, sess, labelCondition, cid)
		if err != nil {
			return zero, err
		}
		c := conditionFromProps(props)
		st.Proposition.Condition = &c
	}
	if tid := strProp(node.Props, "therapeutic_id"); tid != "" {
		th, err := getTherapeutic(ctx, sess, tid)
		if err != nil {
			return zero, err
		}
		st.Proposition.ObjectTherapeutic = th
	}
	if st.MethodID != "" {
		m, err := s.methods.Get(ctx, st.MethodID)
		if err != nil {
			return zero, fmt.Errorf("get method %s: %w", st.MethodID, err)
		}
		st.Method = &m
	}
	for _, docID := range st.DocumentIDs {
		d, err := s.documents.Get(ctx, docID)
		if err != nil {
			return zero, fmt.Errorf("get document %s: %w", docID, err)
		}
		st.Documents = append(st.Documents, d)
	}
	return st, nil
}

// getNodeProps fetches one node of a known label by ID.
func getNodeProps(ctx context.Context, sess session, label, id string) (map[string]any, error) {
	res, err := sess.Run(ctx, "MATCH (n:"+label+" {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", label, id, err)
	}
	if !res.Next(ctx) {
		return nil, fmt.Errorf("%s %s not found", label, id)
	}
	node, _, err := neo4j.GetRecordValue[dbtype.Node](res.Record(), "n")
	if err != nil {
		return nil, err
	}
	return node.Props, nil
}

func getVariant(ctx context.Context, sess session, id string) (*domain.CategoricalVariant, error) {
	cypher := `MATCH (v:` + labelVariant + ` {id: $id})
OPTIONAL MATCH (v)-[:` + relHasDefiningContext + `]->(d:` + labelVariation + `)
OPTIONAL MATCH (v)-[:` + relHasMembers + `]->(m:` + labelVariation + `)
RETURN v, d, collect(m) AS alleles`
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get variant %s: %w", id, err)
	}
	if !res.Next(ctx) {
		return nil, fmt.Errorf("variant %s not found", id)
	}
	rec := res.Record()
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "v")
	if err != nil {
		return nil, err
	}
	cv := variantFromProps(node.Props)

	if raw, ok := rec.Get("d"); ok {
		if dn, ok := raw.(dbtype.Node); ok {
			a := alleleFromProps(dn.Props)
			cv.DefiningAllele = &a
		}
	}
	if raw, ok := rec.Get("alleles"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if mn, ok := item.(dbtype.Node); ok {
					cv.Members = append(cv.Members, alleleFromProps(mn.Props))
				}
			}
		}
	}
	return &cv, nil
}

func getTherapeutic(ctx context.Context, sess session, id string) (*domain.Therapeutic, error) {
	cypher := `MATCH (t {id: $id}) WHERE t:` + labelTherapy + ` OR t:` + labelTherapyGrp + `
OPTIONAL MATCH (t)-[:` + relHasComponents + `|` + relHasSubstitutes + `]->(m:` + labelTherapy + `)
RETURN t, collect(m) AS members`
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get therapeutic %s: %w", id, err)
	}
	if !res.Next(ctx) {
		return nil, fmt.Errorf("therapeutic %s not found", id)
	}
	rec := res.Record()
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "t")
	if err != nil {
		return nil, err
	}

	groupType := domain.TherapyGroupType(strProp(node.Props, "group_type"))
	if groupType == "" {
		agent := therapyFromProps(node.Props)
		return domain.SingleTherapeutic(agent), nil
	}

	th := &domain.Therapeutic{ID: id, GroupType: groupType}
	if raw, ok := rec.Get("members"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if mn, ok := item.(dbtype.Node); ok {
					th.Members = append(th.Members, therapyFromProps(mn.Props))
				}
			}
		}
	}
	return th, nil
}

// GetMethod returns a method node by ID.
func (s *Store) GetMethod(ctx context.Context, id string) (domain.Method, error) {
	return s.methods.Get(ctx, id)
}

// GetDocument returns a document node by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return s.documents.Get(ctx, id)
}

// Counts returns the total node and relationship counts, used by operators
// and tests to verify merge idempotency.
func (s *Store) Counts(ctx context.Context) (nodes, rels int64, err error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, "MATCH (n) RETURN count(n) AS c", nil)
	if err != nil {
		return 0, 0, err
	}
	if res.Next(ctx) {
		if v, ok := res.Record().Get("c"); ok {
			nodes, _ = v.(int64)
		}
	}
	res, err = sess.Run(ctx, "MATCH ()-[r]->() RETURN count(r) AS c", nil)
	if err != nil {
		return 0, 0, err
	}
	if res.Next(ctx) {
		if v, ok := res.Record().Get("c"); ok {
			rels, _ = v.(int64)
		}
	}
	return nodes, rels, nil
}

// TeardownDB deletes every node and relationship. Test isolation only.
func (s *Store) TeardownDB(ctx context.Context) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
	return err
}

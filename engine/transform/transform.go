package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/engine/normalize"
	"github.com/varikb/varikb/pkg/fn"
)

// methods are the static curation methods, one per supported source.
var methods = map[string]domain.Method{
	SourceCIViC: {ID: "civic.method:2019", Label: "CIViC Curation SOP (2019)", ReportedIn: "pmid:31779674"},
	SourceMOA:   {ID: "moa.method:2021", Label: "MOAlmanac (2021)", ReportedIn: "pmid:33796864"},
}

// Transformer converts source harvests into canonical bundles. It is safe
// for concurrent Transform calls: all per-run state lives in a run value.
type Transformer struct {
	normalizers map[normalize.Kind]normalize.Normalizer
	workers     int
	log         *slog.Logger
}

// New creates a Transformer. All four concept normalizers (gene, disease,
// therapy, variation) must be provided.
func New(log *slog.Logger, workers int, normalizers ...normalize.Normalizer) (*Transformer, error) {
	if workers <= 0 {
		workers = 8
	}
	byKind := make(map[normalize.Kind]normalize.Normalizer, len(normalizers))
	for _, n := range normalizers {
		byKind[n.Kind()] = n
	}
	for _, k := range []normalize.Kind{normalize.KindGene, normalize.KindDisease, normalize.KindTherapy, normalize.KindVariation} {
		if _, ok := byKind[k]; !ok {
			return nil, fmt.Errorf("transform: missing %s normalizer", k)
		}
	}
	return &Transformer{normalizers: byKind, workers: workers, log: log}, nil
}

// run holds the state of one Transform invocation: the per-run resolution
// cache and the accumulating entity maps keyed by canonical ID.
type run struct {
	source string
	cache  *normalize.RunCache
	log    *slog.Logger

	geneClient      normalize.Normalizer
	diseaseClient   normalize.Normalizer
	therapyClient   normalize.Normalizer
	variationClient normalize.Normalizer

	rawVariants map[string]RawVariant

	variants   map[string]*domain.CategoricalVariant
	variations map[string]domain.Allele
	genes      map[string]domain.Gene
	conditions map[string]domain.Condition
	therapies  map[string]*domain.Therapeutic
	documents  map[string]domain.Document
	methods    map[string]domain.Method

	evidence   []domain.Statement
	assertions []domain.Statement
}

func (t *Transformer) newRun(source string) *run {
	return &run{
		source:          source,
		cache:           normalize.NewRunCache(),
		log:             t.log.With("source", source),
		geneClient:      t.normalizers[normalize.KindGene],
		diseaseClient:   t.normalizers[normalize.KindDisease],
		therapyClient:   t.normalizers[normalize.KindTherapy],
		variationClient: t.normalizers[normalize.KindVariation],
		rawVariants:     make(map[string]RawVariant),
		variants:        make(map[string]*domain.CategoricalVariant),
		variations:      make(map[string]domain.Allele),
		genes:           make(map[string]domain.Gene),
		conditions:      make(map[string]domain.Condition),
		therapies:       make(map[string]*domain.Therapeutic),
		documents:       make(map[string]domain.Document),
		methods:         make(map[string]domain.Method),
	}
}

func (r *run) addTherapeutic(th *domain.Therapeutic) {
	if _, ok := r.therapies[th.ID]; !ok {
		r.therapies[th.ID] = th
	}
}

// conceptExtensions annotates an entity with the canonical ID the normalizer
// merged it under. The priority flag marks the ID as the normalizer's first
// choice among merged records.
func conceptExtensions(m *normalize.Match) []domain.Extension {
	return []domain.Extension{
		{Name: domain.ExtNormalizerID, Value: m.ID},
		{Name: domain.ExtNormalizerLabel, Value: m.Label},
		{Name: domain.ExtPriority, Value: true},
	}
}

func failureExtensions() []domain.Extension {
	return []domain.Extension{{Name: domain.ExtFailure, Value: true}}
}

// Transform converts one source harvest into a canonical bundle. Statements
// referencing anything that failed to normalize are dropped with a warning;
// the entities themselves are emitted carrying their failure markers so
// reruns stay idempotent. Context cancellation is not a per-record failure:
// it aborts the run with the context's error and no bundle.
func (t *Transformer) Transform(ctx context.Context, harvest SourceHarvest) (*domain.TransformedData, error) {
	if _, ok := methods[harvest.Source]; !ok {
		return nil, fmt.Errorf("transform: unsupported source %q", harvest.Source)
	}
	r := t.newRun(harvest.Source)

	pipeline := fn.Then(
		fn.Then(
			fn.TracedStage("transform.concepts", t.conceptStage(r)),
			fn.TracedStage("transform.statements", t.statementStage(r)),
		),
		fn.TracedStage("transform.emit", t.emitStage(r)),
	)
	return pipeline(ctx, harvest).Unwrap()
}

// conceptStage resolves the harvest's genes and variants up front, in batch,
// so the statement stage only ever hits the run cache for them. Cancellation
// aborts the run: a cancelled context fails every in-flight resolution, and
// emitting those failures as a bundle would publish degraded data downstream.
func (t *Transformer) conceptStage(r *run) fn.Stage[SourceHarvest, SourceHarvest] {
	return func(ctx context.Context, harvest SourceHarvest) fn.Result[SourceHarvest] {
		r.resolveGenes(ctx, harvest.Genes, t.workers)
		r.resolveVariants(ctx, harvest.Variants, t.workers)
		if err := ctx.Err(); err != nil {
			return fn.Err[SourceHarvest](err)
		}
		return fn.Ok(harvest)
	}
}

func (r *run) resolveGenes(ctx context.Context, raws []RawGene, workers int) {
	byID := make(map[string]RawGene, len(raws))
	reqs := fn.Map(raws, func(g RawGene) normalize.Request {
		byID[g.ID] = g
		return normalize.Request{SourceID: g.ID, Queries: append([]string{g.Symbol}, g.Aliases...)}
	})
	for _, out := range r.cache.ResolveAll(ctx, r.geneClient, reqs, workers) {
		raw := byID[out.SourceID]
		g := domain.Gene{ID: raw.ID, Label: raw.Symbol}
		if out.OK {
			g.Mappings = out.Match.Mappings
			g.Extensions = conceptExtensions(out.Match)
		} else {
			g.Extensions = failureExtensions()
			r.log.Warn("gene did not normalize", "gene_id", raw.ID, "symbol", raw.Symbol)
		}
		r.genes[g.ID] = g
	}
}

func (r *run) resolveVariants(ctx context.Context, raws []RawVariant, workers int) {
	byID := make(map[string]RawVariant, len(raws))
	var reqs []normalize.Request
	for _, v := range raws {
		r.rawVariants[v.ID] = v
		byID[v.ID] = v
		if !supportedVariantName(v.Name) {
			r.variants[v.ID] = &domain.CategoricalVariant{
				ID:         v.ID,
				Label:      v.Name,
				Extensions: failureExtensions(),
			}
			r.log.Debug("variant class unsupported, skipping normalization", "variant_id", v.ID, "name", v.Name)
			continue
		}
		symbol := r.genes[v.GeneID].Label
		reqs = append(reqs, normalize.Request{SourceID: v.ID, Queries: variantQueries(symbol, v)})
	}

	outcomes := r.cache.ResolveAll(ctx, r.variationClient, reqs, workers)

	// Variants whose coding form resolved get a second pass to attach the
	// congruent genomic representation as a member allele.
	var genomicReqs []normalize.Request
	for _, out := range outcomes {
		raw := byID[out.SourceID]
		cv := &domain.CategoricalVariant{ID: raw.ID, Label: raw.Name}
		if !out.OK {
			cv.Extensions = failureExtensions()
			r.variants[cv.ID] = cv
			r.log.Warn("variant did not normalize", "variant_id", raw.ID, "name", raw.Name)
			continue
		}
		defining := alleleFromMatch(out.Match, variantExpressions(raw))
		cv.DefiningAllele = &defining
		cv.Mappings = out.Match.Mappings
		cv.Extensions = conceptExtensions(out.Match)
		r.variants[cv.ID] = cv
		r.variations[defining.ID] = defining

		if raw.HGVSGenomic != "" {
			genomicReqs = append(genomicReqs, normalize.Request{
				SourceID: raw.ID + "#genomic",
				Queries:  []string{raw.HGVSGenomic},
			})
		}
	}

	for _, out := range r.cache.ResolveAll(ctx, r.variationClient, genomicReqs, workers) {
		if !out.OK {
			continue
		}
		variantID := strings.TrimSuffix(out.SourceID, "#genomic")
		cv := r.variants[variantID]
		if cv == nil || cv.DefiningAllele == nil || cv.DefiningAllele.ID == out.Match.ID {
			continue
		}
		raw := byID[variantID]
		member := alleleFromMatch(out.Match, []domain.Expression{{Syntax: "hgvs.g", Value: raw.HGVSGenomic}})
		cv.Members = append(cv.Members, member)
		r.variations[member.ID] = member
	}
}

// statementStage builds one canonical statement per evidence item and
// assertion. Malformed records are logged and skipped so one bad record
// never aborts the run.
func (t *Transformer) statementStage(r *run) fn.Stage[SourceHarvest, SourceHarvest] {
	return func(ctx context.Context, harvest SourceHarvest) fn.Result[SourceHarvest] {
		for _, raw := range harvest.Evidence {
			if err := ctx.Err(); err != nil {
				return fn.Err[SourceHarvest](err)
			}
			st, err := r.buildStatement(ctx, raw)
			if err != nil {
				r.log.Warn("skipping evidence record", "evidence_id", raw.ID, "reason", err)
				continue
			}
			r.evidence = append(r.evidence, st)
		}
		for _, raw := range harvest.Assertions {
			if err := ctx.Err(); err != nil {
				return fn.Err[SourceHarvest](err)
			}
			st, err := r.buildStatement(ctx, raw.RawEvidence)
			if err != nil {
				r.log.Warn("skipping assertion record", "assertion_id", raw.ID, "reason", err)
				continue
			}
			if len(raw.EvidenceIDs) > 0 {
				st.EvidenceLines = []domain.EvidenceLine{{
					DirectionOfSupport: domain.DirectionSupports,
					StatementIDs:       raw.EvidenceIDs,
				}}
			}
			r.assertions = append(r.assertions, st)
		}
		return fn.Ok(harvest)
	}
}

func (r *run) buildStatement(ctx context.Context, raw RawEvidence) (domain.Statement, error) {
	var zero domain.Statement

	rv, ok := r.rawVariants[raw.VariantID]
	if !ok {
		return zero, fmt.Errorf("references unknown variant %q", raw.VariantID)
	}

	propType, predicate, err := classify(raw.EvidenceType, raw.Significance)
	if err != nil {
		return zero, err
	}

	prop := domain.Proposition{
		Type:                  propType,
		Predicate:             predicate,
		SubjectVariantID:      raw.VariantID,
		GeneContextID:         rv.GeneID,
		AlleleOriginQualifier: strings.ToLower(raw.AlleleOrigin),
	}

	if raw.Disease != nil {
		cond := r.resolveCondition(ctx, *raw.Disease)
		prop.ConditionID = cond.ID
	}

	switch propType {
	case domain.PropositionTherapeuticResponse:
		if len(raw.Therapies) == 0 {
			return zero, fmt.Errorf("predictive record names no therapies")
		}
		th, ok := r.resolveTherapeutic(ctx, raw.Therapies, raw.TherapyInteractionType)
		if !ok {
			return zero, fmt.Errorf("therapy group discarded (interaction=%q)", raw.TherapyInteractionType)
		}
		prop.ObjectTherapeutic = th
	case domain.PropositionDiagnostic, domain.PropositionPrognostic:
		if prop.ConditionID == "" {
			return zero, fmt.Errorf("%s record names no disease", raw.EvidenceType)
		}
	}

	method := methods[r.source]
	r.methods[method.ID] = method

	st := domain.Statement{
		ID:          raw.ID,
		Description: raw.Description,
		Direction:   direction(raw.EvidenceDirection),
		Proposition: prop,
		MethodID:    method.ID,
	}

	if coding, prov, ok := strengthFor(r.source, raw.EvidenceLevel); ok {
		st.Strength = coding
		st.StrengthProvenance = prov
	}

	if raw.Document != nil {
		if id, ok := r.addDocument(*raw.Document); ok {
			st.DocumentIDs = []string{id}
		}
	}
	return st, nil
}

// classify maps a source evidence type and significance onto the proposition
// taxonomy. Unknown combinations are malformed input, not programming
// errors, so they return an error instead of panicking.
func classify(evidenceType, significance string) (domain.PropositionType, domain.Predicate, error) {
	switch evidenceType {
	case EvidenceTypePredictive:
		switch significance {
		case "SENSITIVITYRESPONSE":
			return domain.PropositionTherapeuticResponse, domain.PredicateSensitivity, nil
		case "RESISTANCE":
			return domain.PropositionTherapeuticResponse, domain.PredicateResistance, nil
		}
	case EvidenceTypeDiagnostic:
		switch significance {
		case "POSITIVE":
			return domain.PropositionDiagnostic, domain.PredicateDiagnosticInclusion, nil
		case "NEGATIVE":
			return domain.PropositionDiagnostic, domain.PredicateDiagnosticExclusion, nil
		}
	case EvidenceTypePrognostic:
		switch significance {
		case "BETTER_OUTCOME":
			return domain.PropositionPrognostic, domain.PredicateBetterOutcome, nil
		case "POOR_OUTCOME":
			return domain.PropositionPrognostic, domain.PredicateWorseOutcome, nil
		}
	}
	return "", "", fmt.Errorf("unsupported evidence type/significance %q/%q", evidenceType, significance)
}

func direction(evidenceDirection string) domain.Direction {
	switch evidenceDirection {
	case "SUPPORTS":
		return domain.DirectionSupports
	case "DOES_NOT_SUPPORT", "REFUTES":
		return domain.DirectionRefutes
	default:
		return domain.DirectionNone
	}
}

func diseaseQueries(d RawDisease) []string {
	queries := make([]string, 0, 2)
	if d.DOID != "" {
		queries = append(queries, "DOID:"+strings.TrimPrefix(d.DOID, "DOID:"))
	}
	queries = append(queries, d.Name)
	return queries
}

func (r *run) resolveCondition(ctx context.Context, raw RawDisease) domain.Condition {
	if c, ok := r.conditions[raw.ID]; ok {
		return c
	}
	match, ok := r.cache.Resolve(ctx, raw.ID, func(ctx context.Context) (*normalize.Match, error) {
		return r.diseaseClient.Normalize(ctx, diseaseQueries(raw))
	})
	c := domain.Condition{ID: raw.ID, Label: raw.Name}
	if ok {
		c.Mappings = match.Mappings
		c.Extensions = conceptExtensions(match)
	} else {
		c.Extensions = failureExtensions()
		r.log.Warn("disease did not normalize", "disease_id", raw.ID, "name", raw.Name)
	}
	r.conditions[c.ID] = c
	return c
}

// addDocument deduplicates a document by ID, DOI, then PMID. Documents with
// no usable key are dropped and the statement simply carries no reference.
func (r *run) addDocument(raw RawDocument) (string, bool) {
	doc := domain.Document{
		ID:       raw.ID,
		DOI:      raw.DOI,
		PMID:     raw.PMID,
		Title:    raw.Title,
		Citation: raw.Citation,
		URL:      raw.URL,
	}
	key := doc.Key()
	if key == "" {
		return "", false
	}
	if doc.ID == "" {
		doc.ID = key
	}
	if existing, ok := r.documents[key]; ok {
		return existing.ID, true
	}
	r.documents[key] = doc
	return doc.ID, true
}

// emitStage assembles the bundle, drops unloadable statements, and sorts
// every slice by ID so identical input produces byte-identical output.
func (t *Transformer) emitStage(r *run) fn.Stage[SourceHarvest, *domain.TransformedData] {
	return func(ctx context.Context, _ SourceHarvest) fn.Result[*domain.TransformedData] {
		if err := ctx.Err(); err != nil {
			return fn.Err[*domain.TransformedData](err)
		}
		data := &domain.TransformedData{
			StatementsEvidence:   r.evidence,
			StatementsAssertions: r.assertions,
		}
		for _, cv := range r.variants {
			data.CategoricalVariants = append(data.CategoricalVariants, *cv)
		}
		for _, a := range r.variations {
			data.Variations = append(data.Variations, a)
		}
		for _, g := range r.genes {
			data.Genes = append(data.Genes, g)
		}
		for _, th := range r.therapies {
			data.Therapies = append(data.Therapies, *th)
		}
		for _, c := range r.conditions {
			data.Conditions = append(data.Conditions, c)
		}
		for _, m := range r.methods {
			data.Methods = append(data.Methods, m)
		}
		for _, d := range r.documents {
			data.Documents = append(data.Documents, d)
		}

		ix := domain.NewEntityIndex(data)
		data.StatementsEvidence = r.filterLoadable(ix, data.StatementsEvidence)
		data.StatementsAssertions = r.filterLoadable(ix, data.StatementsAssertions)

		sortByID(data.StatementsEvidence, func(s domain.Statement) string { return s.ID })
		sortByID(data.StatementsAssertions, func(s domain.Statement) string { return s.ID })
		sortByID(data.CategoricalVariants, func(v domain.CategoricalVariant) string { return v.ID })
		sortByID(data.Variations, func(a domain.Allele) string { return a.ID })
		sortByID(data.Genes, func(g domain.Gene) string { return g.ID })
		sortByID(data.Therapies, func(th domain.Therapeutic) string { return th.ID })
		sortByID(data.Conditions, func(c domain.Condition) string { return c.ID })
		sortByID(data.Methods, func(m domain.Method) string { return m.ID })
		sortByID(data.Documents, func(d domain.Document) string { return d.ID })

		r.log.Info("transform complete",
			"evidence", len(data.StatementsEvidence),
			"assertions", len(data.StatementsAssertions),
			"variants", len(data.CategoricalVariants),
			"normalizer_calls", r.cache.Len(),
		)
		return fn.Ok(data)
	}
}

func (r *run) filterLoadable(ix *domain.EntityIndex, statements []domain.Statement) []domain.Statement {
	return fn.Filter(statements, func(st domain.Statement) bool {
		if ix.Loadable(&st) {
			return true
		}
		r.log.Warn("dropping unloadable statement", "statement_id", st.ID)
		return false
	})
}

func sortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}

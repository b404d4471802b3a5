package transform

import (
	"context"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/engine/normalize"
)

// therapyQueries builds the ordered candidate queries for one therapy:
// NCIt code first, then the free-text name.
func therapyQueries(t RawTherapy) []string {
	queries := make([]string, 0, 2)
	if t.NCItID != "" {
		queries = append(queries, "ncit:"+t.NCItID)
	}
	queries = append(queries, t.Name)
	return queries
}

// resolveTherapy normalizes one agent through the per-run cache. Failures
// are recorded on the returned Therapy's extensions, never swallowed.
func (r *run) resolveTherapy(ctx context.Context, raw RawTherapy) domain.Therapy {
	match, ok := r.cache.Resolve(ctx, raw.ID, func(ctx context.Context) (*normalize.Match, error) {
		return r.therapyClient.Normalize(ctx, therapyQueries(raw))
	})
	t := domain.Therapy{ID: raw.ID, Label: raw.Name}
	if !ok {
		t.Extensions = []domain.Extension{{Name: domain.ExtFailure, Value: true}}
		return t
	}
	t.Mappings = match.Mappings
	t.Extensions = conceptExtensions(match)
	return t
}

// resolveTherapeutic builds the statement's therapeutic object from the raw
// therapy list. A single agent is wrapped directly even when normalization
// failed (the loadability filter drops the statement later). A multi-agent
// group is discarded whole when any member fails or the interaction type is
// unknown, since a partial group would assert a different clinical claim.
func (r *run) resolveTherapeutic(ctx context.Context, therapies []RawTherapy, interaction string) (*domain.Therapeutic, bool) {
	switch len(therapies) {
	case 0:
		return nil, true
	case 1:
		agent := r.resolveTherapy(ctx, therapies[0])
		th := domain.SingleTherapeutic(agent)
		r.addTherapeutic(th)
		return th, true
	}

	var groupType domain.TherapyGroupType
	switch interaction {
	case InteractionSubstitutes:
		groupType = domain.TherapyGroupSubstitutes
	case InteractionCombination:
		groupType = domain.TherapyGroupCombination
	default:
		return nil, false
	}

	members := make([]domain.Therapy, 0, len(therapies))
	for _, raw := range therapies {
		m := r.resolveTherapy(ctx, raw)
		if domain.NormalizerFailed(m.Extensions) {
			return nil, false
		}
		members = append(members, m)
	}

	group, err := domain.NewTherapeuticGroup(groupType, members)
	if err != nil {
		return nil, false
	}
	r.addTherapeutic(group)
	return group, true
}

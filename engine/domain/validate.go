package domain

import "fmt"

// NewTherapeuticGroup builds a substitute or combination group from its
// normalized members. Groups need at least two members; the group ID is a
// digest over the sorted member IDs.
func NewTherapeuticGroup(groupType TherapyGroupType, members []Therapy) (*Therapeutic, error) {
	switch groupType {
	case TherapyGroupSubstitutes, TherapyGroupCombination:
	default:
		return nil, NewValidationError("group_type", string(groupType), ErrInvalidTherapyGroup)
	}
	if len(members) < 2 {
		return nil, NewValidationError("members", fmt.Sprintf("%d", len(members)), ErrInvalidTherapyGroup)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		if m.ID == "" {
			return nil, NewValidationError("members", "empty member id", ErrInvalidTherapyGroup)
		}
		ids[i] = m.ID
	}
	return &Therapeutic{
		ID:        string(groupType) + ":" + GroupDigest(ids),
		GroupType: groupType,
		Members:   members,
	}, nil
}

// SingleTherapeutic wraps a single normalized agent.
func SingleTherapeutic(agent Therapy) *Therapeutic {
	return &Therapeutic{ID: agent.ID, Agent: &agent}
}

// ValidatePage rejects negative pagination parameters. Zero limit means
// "no cap" and is accepted.
func ValidatePage(start, limit int) error {
	if start < 0 {
		return NewValidationError("start", fmt.Sprintf("%d", start), ErrInvalidPagination)
	}
	if limit < 0 {
		return NewValidationError("limit", fmt.Sprintf("%d", limit), ErrInvalidPagination)
	}
	return nil
}

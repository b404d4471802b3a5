package domain

import (
	"errors"
	"testing"
)

func TestNewTherapeuticGroup(t *testing.T) {
	members := []Therapy{{ID: "ncit:C2"}, {ID: "ncit:C1"}}
	g, err := NewTherapeuticGroup(TherapyGroupSubstitutes, members)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.GroupType != TherapyGroupSubstitutes {
		t.Errorf("group type = %q", g.GroupType)
	}
	reordered, err := NewTherapeuticGroup(TherapyGroupSubstitutes, []Therapy{{ID: "ncit:C1"}, {ID: "ncit:C2"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.ID != reordered.ID {
		t.Errorf("group ID depends on member order: %q vs %q", g.ID, reordered.ID)
	}
}

func TestNewTherapeuticGroupRejections(t *testing.T) {
	tests := []struct {
		name      string
		groupType TherapyGroupType
		members   []Therapy
	}{
		{"unknown type", "Both", []Therapy{{ID: "a"}, {ID: "b"}}},
		{"single member", TherapyGroupCombination, []Therapy{{ID: "a"}}},
		{"empty member id", TherapyGroupCombination, []Therapy{{ID: "a"}, {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTherapeuticGroup(tt.groupType, tt.members)
			if !errors.Is(err, ErrInvalidTherapyGroup) {
				t.Errorf("expected ErrInvalidTherapyGroup, got %v", err)
			}
		})
	}
}

func TestValidatePage(t *testing.T) {
	tests := []struct {
		start, limit int
		wantErr      bool
	}{
		{0, 0, false},
		{0, 10, false},
		{5, 100, false},
		{-1, 10, true},
		{0, -1, true},
	}
	for _, tt := range tests {
		err := ValidatePage(tt.start, tt.limit)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePage(%d, %d) err = %v, wantErr %v", tt.start, tt.limit, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidPagination) {
			t.Errorf("error should wrap ErrInvalidPagination, got %v", err)
		}
	}
}

func TestDocumentKey(t *testing.T) {
	tests := []struct {
		doc  Document
		want string
	}{
		{Document{ID: "moa.source:42", DOI: "10.1/x"}, "moa.source:42"},
		{Document{DOI: "10.1/x", PMID: "123"}, "doi:10.1/x"},
		{Document{PMID: "123"}, "pmid:123"},
		{Document{Title: "untracked"}, ""},
	}
	for _, tt := range tests {
		if got := tt.doc.Key(); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
	}
}

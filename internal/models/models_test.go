package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAmount(t *testing.T) {
	tests := []struct {
		name  string
		price *string
		want  int64
		ok    bool
	}{
		{"spaced", StringPtr("250 000 €"), 250000, true},
		{"plain", StringPtr("90000"), 90000, true},
		{"no digits", StringPtr("N/A"), 0, false},
		{"absent", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Record{Price: tt.price}.Amount()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordFieldsOnlyHoldPresentValues(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	r := Record{Title: "Imprimerie", Description: "Offset et numérique", Reference: StringPtr("AJ-12"), ExtractedAt: at}

	assert.Equal(t, map[string]string{
		"title":        "Imprimerie",
		"description":  "Offset et numérique",
		"reference":    "AJ-12",
		"extracted_at": "2024-03-15T09:30:00Z",
	}, r.Fields())
}

func TestNewRecordSet(t *testing.T) {
	set := NewRecordSet(nil, time.Time{})
	assert.Equal(t, 0, set.Total)
	assert.NotNil(t, set.Records)

	set = NewRecordSet([]Record{{Title: "a"}, {Title: "b"}}, time.Time{})
	assert.Equal(t, 2, set.Total)
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", Deref(StringPtr("x")))
	assert.Equal(t, "", Deref(nil))
}

func TestWebsites(t *testing.T) {
	entries := []DirectoryEntry{
		{Name: "A", Website: StringPtr("https://aj-a.fr")},
		{Name: "B"},
		{Name: "C", Website: StringPtr("https://aj-c.fr")},
		{Name: "D", Website: StringPtr("https://aj-a.fr")},
	}
	assert.Equal(t, []string{"https://aj-a.fr", "https://aj-c.fr"}, Websites(entries))
	assert.Empty(t, Websites(nil))
}

func TestHierarchy(t *testing.T) {
	h := NewHierarchy()
	root := h.Add("https://aj.fr", NoParent)
	a := h.Add("https://aj.fr/annonces", root)
	b := h.Add("https://aj.fr/annonces/1", a)

	// a second discovery keeps the first parent
	assert.Equal(t, b, h.Add("https://aj.fr/annonces/1", root))

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 0, h.Node(root).Depth)
	assert.Equal(t, 2, h.Node(b).Depth)
	assert.Equal(t, a, h.Node(b).Parent)
	assert.Equal(t, []NodeID{a}, h.Node(root).Children)
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, h.DepthHistogram())

	id, ok := h.Lookup("https://aj.fr/annonces")
	assert.True(t, ok)
	assert.Equal(t, a, id)

	tree := h.Tree()
	require.NotNil(t, tree)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "https://aj.fr/annonces/1", tree.Children[0].Children[0].URL)

	assert.Nil(t, NewHierarchy().Tree())
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "root with slash", in: "https://example.com/", want: "https://example.com"},
		{name: "root without slash", in: "https://example.com", want: "https://example.com"},
		{name: "fragment", in: "https://example.com/annonces#top", want: "https://example.com/annonces"},
		{name: "slash and fragment", in: "https://example.com/annonces/#top", want: "https://example.com/annonces"},
		{name: "query kept", in: "https://example.com/annonces/?page=2", want: "https://example.com/annonces?page=2"},
		{name: "host lowercased", in: "HTTPS://Example.COM/Ventes", want: "https://example.com/Ventes"},
		{name: "double slash", in: "https://example.com/a//", want: "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := Canonicalize(got)
			require.NoError(t, err)
			assert.Equal(t, got, again, "canonicalization must be idempotent")
		})
	}
}

func TestCanonicalizeTrailingSlashAndFragmentAgree(t *testing.T) {
	variants := []string{
		"https://example.com/ventes",
		"https://example.com/ventes/",
		"https://example.com/ventes#liste",
		"https://example.com/ventes/#liste",
	}
	want, err := Canonicalize(variants[0])
	require.NoError(t, err)
	for _, v := range variants[1:] {
		got, err := Canonicalize(v)
		require.NoError(t, err)
		assert.Equal(t, want, got, v)
	}
}

func TestCanonicalizeRejectsRelative(t *testing.T) {
	_, err := Canonicalize("/annonces")
	assert.Error(t, err)

	_, err = Canonicalize("")
	assert.Error(t, err)
}

func TestInScope(t *testing.T) {
	assert.True(t, InScope("https://example.fr/a", "example.fr", false))
	assert.True(t, InScope("https://EXAMPLE.fr:8443/a", "example.fr", false))
	assert.False(t, InScope("https://www.example.fr/a", "example.fr", false))
	assert.True(t, InScope("https://www.example.fr/a", "example.fr", true))
	assert.False(t, InScope("https://other.fr/a", "example.fr", true))
	assert.False(t, InScope("https://example.fr/a", "", false))
}

func TestIsPageURL(t *testing.T) {
	assert.True(t, IsPageURL("https://example.fr/annonces"))
	assert.True(t, IsPageURL("http://example.fr/annonces?page=2"))
	assert.False(t, IsPageURL("mailto:contact@example.fr"))
	assert.False(t, IsPageURL("javascript:void(0)"))
	assert.False(t, IsPageURL("https://example.fr/plaquette.PDF"))
}

func TestTruncateCountsCharacters(t *testing.T) {
	assert.Equal(t, "éèà", Truncate("éèàç", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, 4, Length("éèàç"))
}

func TestCountOccurrences(t *testing.T) {
	text := "vente de fonds, vente aux enchères, cession"
	assert.Equal(t, 3, CountOccurrences(text, []string{"vente", "cession"}))
	assert.Equal(t, 0, CountOccurrences(text, []string{"", "liquidation"}))
}

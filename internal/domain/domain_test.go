package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		name  string
		key   BookKey
		title string
		want  string
	}{
		{"title keyed", "Clinical Optics", "Clinical Optics", "Clinical_Optics.pdf"},
		{"id keyed", "b-42", "Clinical Optics", "Clinical_Optics (b-42).pdf"},
		{"illegal characters", "7", "Lens: Design/Theory?", "Lens__Design_Theory_ (7).pdf"},
		{"illegal characters in key", "a/b c", "Optics", "Optics (a_b_c).pdf"},
		{"every whitespace replaced", "Ocular  Disease\tAtlas", "Ocular  Disease\tAtlas", "Ocular__Disease_Atlas.pdf"},
		{"blank title falls back to key", "b-9", "", "b-9.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.key, tt.title))
		})
	}
}

func TestFileNameDistinctForSharedTitle(t *testing.T) {
	a := FileName("1", "Binocular Vision")
	b := FileName("2", "Binocular Vision")
	assert.NotEqual(t, a, b)
}

func TestFileNameKeyedNeverMatchesTitleKeyed(t *testing.T) {
	tests := []struct {
		keyed BookKey
		title string
	}{
		{"X", "A"},
		{"b-42", "Clinical Optics"},
		{"7", "Lens (2nd)"},
	}

	for _, tt := range tests {
		keyed := FileName(tt.keyed, tt.title)
		for _, lookalike := range []string{
			tt.title + "-" + string(tt.keyed),
			tt.title + "--" + string(tt.keyed),
			tt.title + " (" + string(tt.keyed) + ")",
			tt.title + "_(" + string(tt.keyed) + ")",
		} {
			assert.NotEqual(t, keyed, FileName(BookKey(lookalike), lookalike), lookalike)
		}
	}
}

func TestBookKey(t *testing.T) {
	assert.Equal(t, BookKey("abc"), Book{ID: " abc ", Title: "X"}.Key())
	assert.Equal(t, BookKey("Clinical Optics"), Book{Title: "Clinical Optics"}.Key())
}

func TestBookMatches(t *testing.T) {
	b := Book{Title: "Clinical Optics", Author: "Elkington", Description: "Refraction and lenses"}

	assert.True(t, b.Matches("clinical"))
	assert.True(t, b.Matches("ELKING"))
	assert.True(t, b.Matches("lenses"))
	assert.False(t, b.Matches("glaucoma"))
}

func TestWithDefaults(t *testing.T) {
	b := Book{Title: "T", PDFURL: "https://x/y.pdf"}.WithDefaults()

	assert.Equal(t, DefaultAuthor, b.Author)
	assert.Equal(t, DefaultDescription, b.Description)
	assert.Equal(t, DefaultImage, b.Image)
}

func TestBookmarkIDAndLabel(t *testing.T) {
	assert.Equal(t, "b-1_page_12", BookmarkID("b-1", 12))
	assert.Equal(t, "Clinical Optics - Page 12", BookmarkLabel("Clinical Optics", 12))
}

func TestCalculateFileHash(t *testing.T) {
	sum, err := CalculateFileHash(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

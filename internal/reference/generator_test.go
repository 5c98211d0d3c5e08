package reference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		ref, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, ref, Length)
		assert.True(t, Valid(ref), "unexpected reference %q", ref)
		seen[ref] = struct{}{}
	}
	// 31^6 codes; 500 draws colliding more than a handful of times means a broken source.
	assert.Greater(t, len(seen), 490)
}

func TestAlphabet_ExcludesConfusableCharacters(t *testing.T) {
	for _, c := range "0O1IL" {
		assert.False(t, strings.ContainsRune(Alphabet, c), "alphabet contains %q", c)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC234", Normalize(" abc234 "))
	assert.Equal(t, "XYZ789", Normalize("XYZ789"))
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want bool
	}{
		{name: "valid", ref: "ABC234", want: true},
		{name: "too short", ref: "ABC23", want: false},
		{name: "too long", ref: "ABC2345", want: false},
		{name: "lower case", ref: "abc234", want: false},
		{name: "confusable zero", ref: "ABC230", want: false},
		{name: "confusable letter O", ref: "ABCO23", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.ref))
		})
	}
}

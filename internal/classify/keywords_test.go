package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeywords_FamiliesDisjoint(t *testing.T) {
	t.Parallel()

	k := DefaultKeywords()
	families := map[string][]string{
		"interview":  k.Interview,
		"rejection":  k.Rejection,
		"offer":      k.Offer,
		"withdrawal": k.Withdrawal,
	}

	seen := make(map[string]string)
	for name, terms := range families {
		for _, term := range terms {
			if prev, ok := seen[term]; ok {
				t.Fatalf("term %q appears in both %s and %s", term, prev, name)
			}
			seen[term] = name
		}
	}
}

func TestLoadKeywords_OverridesFamilies(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keywords.yaml")
	content := `keywords:
  interview:
    - "hiring loop"
    - "onsite"
  offer:
    - "verbal offer"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	k, err := LoadKeywords(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"hiring loop", "onsite"}, k.Interview)
	assert.Equal(t, []string{"verbal offer"}, k.Offer)

	// Families absent from the file keep the defaults.
	assert.Equal(t, DefaultKeywords().Rejection, k.Rejection)
	assert.Equal(t, DefaultKeywords().Withdrawal, k.Withdrawal)
}

func TestLoadKeywords_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadKeywords(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadKeywords_BadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords: [not: a: map"), 0o644))

	_, err := LoadKeywords(path)
	assert.Error(t, err)
}

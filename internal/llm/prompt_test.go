package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("")

	for _, term := range []string{"markdown", "LaTeX", "$$", "source", DefaultSubject} {
		assert.Contains(t, prompt, term)
	}
	assert.Contains(t, prompt, "line containing only "+domain.PageSeparator)

	assert.True(t, strings.Contains(BuildPrompt("computer vision"), "lecture slides on computer vision"))
}

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()

	prompt, err := LoadPrompt("", "optimization")
	require.NoError(t, err)
	assert.Equal(t, BuildPrompt("optimization"), prompt)

	custom := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(custom, []byte("  Transcribe the slides.\n"), 0o644))
	prompt, err = LoadPrompt(custom, "")
	require.NoError(t, err)
	assert.Equal(t, "Transcribe the slides.", prompt)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o644))
	_, err = LoadPrompt(empty, "")
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	_, err = LoadPrompt(filepath.Join(dir, "missing.txt"), "")
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

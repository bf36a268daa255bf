package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePDFPath(t *testing.T) {
	dir := t.TempDir()
	valid := writeBlankPDF(t, dir, 1)
	notPDF := filepath.Join(dir, "slides.txt")
	require.NoError(t, os.WriteFile(notPDF, []byte("x"), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid pdf", path: valid},
		{name: "empty path", path: "  ", wantErr: true},
		{name: "missing file", path: filepath.Join(dir, "nope.pdf"), wantErr: true},
		{name: "directory", path: dir, wantErr: true},
		{name: "wrong extension", path: notPDF, wantErr: true},
	}

	v := NewValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePDFPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateQuality(t *testing.T) {
	v := NewValidator(nil)
	assert.NoError(t, v.ValidateQuality(1))
	assert.NoError(t, v.ValidateQuality(100))
	assert.Error(t, v.ValidateQuality(0))
	assert.Error(t, v.ValidateQuality(101))
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator(nil)

	pages, err := v.Preflight(writeBlankPDF(t, dir, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, pages)

	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("%PDF-1.4 truncated"), 0o644))
	_, err = v.Preflight(garbage)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeRender))
}

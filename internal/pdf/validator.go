package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ledpdf "github.com/ledongthuc/pdf"
	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/spherical/lecture-ingest/internal/observability"
)

// Validator provides input validation for PDF files
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance
func NewValidator(logger *observability.Logger) *Validator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Validator{logger: logger}
}

// ValidatePDFPath validates that a file path is valid and points to a PDF
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	// Large decks are allowed, they just take a while
	const maxSize = 100 * 1024 * 1024
	if info.Size() > maxSize {
		v.logger.Warn().
			Str("path", path).
			Int("size_mb", int(info.Size()/(1024*1024))).
			Msg("PDF file is very large, processing may take a while")
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// Preflight parses the PDF structure and returns its page count without rendering
func (v *Validator) Preflight(path string) (pages int, err error) {
	// The parser panics on some malformed trailers
	defer func() {
		if r := recover(); r != nil {
			err = domain.RenderError("PDF structure is unreadable", fmt.Errorf("%v", r))
		}
	}()

	f, r, err := ledpdf.Open(path)
	if err != nil {
		return 0, domain.RenderError("PDF structure is unreadable", err)
	}
	defer f.Close()

	pages = r.NumPage()
	if pages == 0 {
		return 0, domain.RenderError("PDF has no pages", nil)
	}
	return pages, nil
}

// ValidateQuality validates image quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}

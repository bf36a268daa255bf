package pdf

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/spherical/lecture-ingest/internal/observability"
)

const (
	DefaultQuality = 85
	DefaultDPI     = 150
)

// ConverterOptions controls how pages are rasterized and staged
type ConverterOptions struct {
	StagingDir string  // Empty means a fresh temp dir per render
	Quality    int     // JPEG quality 1-100
	DPI        float64 // 0 uses the go-fitz default
	KeepImages bool    // Skip removing staged images on Cleanup
}

// Converter implements PDF to image rendering using go-fitz.
// A Converter stages one document at a time and is not safe for concurrent use.
type Converter struct {
	opts      ConverterOptions
	logger    *observability.Logger
	validator *Validator

	doc         *fitz.Document
	stagedFiles []string
	tempDir     string
}

// NewConverter creates a new PDF converter instance
func NewConverter(opts ConverterOptions, logger *observability.Logger) *Converter {
	if opts.Quality == 0 {
		opts.Quality = DefaultQuality
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Converter{
		opts:      opts,
		logger:    logger.WithOperation("render"),
		validator: NewValidator(logger),
	}
}

// Render converts every page of a PDF file into a JPG in the staging directory
func (c *Converter) Render(ctx context.Context, pdfPath string) (*domain.SourceDocument, error) {
	if err := c.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, domain.RenderError("invalid PDF input", err)
	}
	if err := c.validator.ValidateQuality(c.opts.Quality); err != nil {
		return nil, err
	}

	// MuPDF repairs files the structural parser rejects, so only the renderer decides
	expected, perr := c.validator.Preflight(pdfPath)
	if perr != nil {
		c.logger.Warn().
			Str("source", pdfPath).
			Err(perr).
			Msg("structural preflight failed, relying on renderer")
		expected = 0
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.RenderError("failed to open PDF", err)
	}
	c.doc = doc

	stagingDir, err := c.stagingDir()
	if err != nil {
		return nil, err
	}

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.RenderError("PDF has no pages", nil)
	}
	if expected > 0 && pageCount != expected {
		c.logger.Warn().
			Str("source", pdfPath).
			Int("rendered_pages", pageCount).
			Int("parsed_pages", expected).
			Msg("page count differs between parsers, using renderer count")
	}

	source := &domain.SourceDocument{
		Path:  pdfPath,
		Pages: make([]domain.PageImage, 0, pageCount),
	}

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page, err := c.renderPage(stagingDir, pageNum)
		if err != nil {
			return nil, err
		}
		source.Pages = append(source.Pages, page)
	}

	c.logger.Debug().
		Str("source", pdfPath).
		Str("staging_dir", stagingDir).
		Int("pages", pageCount).
		Msg("rendered PDF")

	return source, nil
}

func (c *Converter) renderPage(stagingDir string, pageNum int) (domain.PageImage, error) {
	var (
		img image.Image
		err error
	)
	if c.opts.DPI > 0 {
		img, err = c.doc.ImageDPI(pageNum, c.opts.DPI)
	} else {
		img, err = c.doc.Image(pageNum)
	}
	if err != nil {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("failed to rasterize page %d", pageNum), err)
	}

	outputPath := filepath.Join(stagingDir, fmt.Sprintf("page_%03d.jpg", pageNum))
	outputFile, err := os.Create(outputPath)
	if err != nil {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("failed to create output file for page %d", pageNum), err)
	}

	err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: c.opts.Quality})
	outputFile.Close()
	c.stagedFiles = append(c.stagedFiles, outputPath)
	if err != nil {
		return domain.PageImage{}, domain.RenderError(fmt.Sprintf("failed to encode page %d as JPG", pageNum), err)
	}

	bounds := img.Bounds()
	return domain.PageImage{
		Index:     pageNum,
		ImagePath: outputPath,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

func (c *Converter) stagingDir() (string, error) {
	if c.opts.StagingDir != "" {
		if err := os.MkdirAll(c.opts.StagingDir, 0o755); err != nil {
			return "", domain.RenderError("failed to create staging directory", err)
		}
		return c.opts.StagingDir, nil
	}

	tempDir, err := os.MkdirTemp("", "lecture-ingest-*")
	if err != nil {
		return "", domain.RenderError("failed to create temp directory", err)
	}
	c.tempDir = tempDir
	return tempDir, nil
}

// Cleanup removes staged images and closes the PDF document
func (c *Converter) Cleanup() error {
	var errs []error

	if c.doc != nil {
		if err := c.doc.Close(); err != nil {
			errs = append(errs, err)
		}
		c.doc = nil
	}

	if !c.opts.KeepImages {
		for _, path := range c.stagedFiles {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
		if c.tempDir != "" {
			if err := os.RemoveAll(c.tempDir); err != nil {
				errs = append(errs, err)
			}
		}
	}

	c.stagedFiles = nil
	c.tempDir = ""

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

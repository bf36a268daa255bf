package domain

import "context"

// Renderer defines the interface for converting a PDF into staged page images
type Renderer interface {
	// Render rasterizes every page of the PDF, in page order
	Render(ctx context.Context, pdfPath string) (*SourceDocument, error)

	// Cleanup removes staged files created during rendering
	Cleanup() error
}

// Encoder turns a staged page image into its transport-safe form
type Encoder interface {
	Encode(page PageImage) (EncodedPage, error)
}

// Caller sends one batch of pages with the instruction prompt to an extraction
// service and returns the raw response text
type Caller interface {
	Extract(ctx context.Context, prompt string, batch Batch) (string, error)
}

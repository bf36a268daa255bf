package pdf

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spherical/lecture-ingest/internal/domain"
)

// Encoder reads staged page images back from disk and base64-encodes them
type Encoder struct{}

// NewEncoder creates a new encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns the standard base64 encoding of a staged page image
func (e *Encoder) Encode(page domain.PageImage) (domain.EncodedPage, error) {
	data, err := os.ReadFile(page.ImagePath)
	if err != nil {
		return domain.EncodedPage{}, domain.EncodeError(fmt.Sprintf("failed to read image for page %d", page.Index), err)
	}
	if len(data) == 0 {
		return domain.EncodedPage{}, domain.EncodeError(fmt.Sprintf("image for page %d is empty", page.Index), nil)
	}

	return domain.EncodedPage{
		Index: page.Index,
		Data:  base64.StdEncoding.EncodeToString(data),
	}, nil
}

// EncodeAll encodes every page of a source document in page order
func EncodeAll(ctx context.Context, enc domain.Encoder, doc *domain.SourceDocument) ([]domain.EncodedPage, error) {
	encoded := make([]domain.EncodedPage, 0, len(doc.Pages))
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ep, err := enc.Encode(page)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, ep)
	}
	return encoded, nil
}

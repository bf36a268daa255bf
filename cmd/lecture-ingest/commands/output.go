package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/lecture-ingest/pkg/ingest"
)

// outputPath returns <dir>/<name>-docs.jsonl, defaulting dir to the PDF's directory
func outputPath(pdfPath, dir string) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	if dir == "" {
		dir = filepath.Dir(pdfPath)
	}
	return filepath.Join(dir, base+"-docs.jsonl")
}

// writeJSONL writes one JSON object per document, in order
func writeJSONL(path string, docs []ingest.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode page %d: %w", doc.Metadata.Page, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return f.Close()
}

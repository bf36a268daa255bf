package ingest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLiveIngestion runs the full pipeline against a real extraction API.
// Set LECTURE_INGEST_SAMPLE_PDF and OPENROUTER_API_KEY to enable it.
func TestLiveIngestion(t *testing.T) {
	_ = godotenv.Load("../../.env")

	pdfPath := os.Getenv("LECTURE_INGEST_SAMPLE_PDF")
	if pdfPath == "" {
		t.Skip("LECTURE_INGEST_SAMPLE_PDF not set")
	}
	if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
		t.Skipf("Sample PDF not found at %s", pdfPath)
	}
	if os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Skip("OPENROUTER_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := NewClient(ctx)
	require.NoError(t, err)
	defer client.Close()

	events := make(chan StreamEvent, 100)
	docs, err := client.ParseWithEvents(ctx, pdfPath, events)
	close(events)
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	for ev := range events {
		if ev.Type == EventBatchComplete {
			t.Logf("batch %d/%d complete", ev.Batch+1, ev.Total)
		}
	}

	for i, doc := range docs {
		assert.Equal(t, i, doc.Metadata.Page)
		assert.Equal(t, pdfPath, doc.Metadata.Source)
		if strings.TrimSpace(doc.Content) == "" {
			t.Logf("Warning: page %d produced empty markdown (may be okay for blank slides)", i)
		}
	}
}

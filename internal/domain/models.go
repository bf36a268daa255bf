package domain

import "time"

// DefaultBatchSize is the number of pages sent to the extraction service per request
const DefaultBatchSize = 5

// PageSeparator delimits per-page output inside one batch response.
// The instruction prompt asks the model for it and the assembler splits on it.
const PageSeparator = "---"

// SourceDocument represents the PDF being ingested and its rendered pages
type SourceDocument struct {
	Path  string
	Pages []PageImage
}

// PageImage represents a single rendered PDF page persisted in the staging directory
type PageImage struct {
	Index     int    // 0-based, matches PDF page order
	ImagePath string // Path to the staged JPG file
	Width     int
	Height    int
}

// EncodedPage is a page image in transport-safe (base64) form
type EncodedPage struct {
	Index int
	Data  string
}

// Batch is a contiguous run of encoded pages sent in one extraction request
type Batch struct {
	Index int
	Pages []EncodedPage
}

// FirstPage returns the global index of the first page in the batch
func (b Batch) FirstPage() int {
	if len(b.Pages) == 0 {
		return -1
	}
	return b.Pages[0].Index
}

// DocumentMetadata identifies where an output document came from
type DocumentMetadata struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
}

// OutputDocument is one ingested page handed to downstream indexing
type OutputDocument struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart           EventType = "start"
	EventRendering       EventType = "rendering"
	EventBatchProcessing EventType = "batch_processing"
	EventBatchComplete   EventType = "batch_complete"
	EventError           EventType = "error"
	EventComplete        EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Batch     int         `json:"batch"` // NoBatch for run-level events
	Total     int         `json:"total,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // Status message or error text
	Timestamp time.Time   `json:"timestamp"`
}

// ProcessingStats contains metadata about an ingestion run
type ProcessingStats struct {
	RunID     string
	TotalTime time.Duration
	Pages     int
	Batches   int
	Documents int
}

package extract

import (
	"fmt"
	"strings"

	"github.com/spherical/lecture-ingest/internal/domain"
)

// SplitPages splits one batch response on separator lines.
// A separator line is one whose trimmed content is exactly the page separator.
func SplitPages(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		segments []string
		current  []string
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == domain.PageSeparator {
			segments = append(segments, strings.TrimSpace(strings.Join(current, "\n")))
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	return append(segments, strings.TrimSpace(strings.Join(current, "\n")))
}

// reconcile matches split segments to the expected page count. The only
// adjustment is dropping one empty segment left by a dangling separator.
func reconcile(segments []string, expected int) ([]string, bool) {
	if len(segments) == expected {
		return segments, true
	}
	if len(segments) == expected+1 {
		if segments[len(segments)-1] == "" {
			return segments[:len(segments)-1], true
		}
		if segments[0] == "" {
			return segments[1:], true
		}
	}
	return nil, false
}

// Assemble turns ordered batch responses into one output document per page.
// Segment j of batch i becomes the document for that batch's j-th page.
func Assemble(source string, batches []domain.Batch, responses []string) ([]domain.OutputDocument, error) {
	if len(responses) != len(batches) {
		return nil, domain.ValidationError(
			fmt.Sprintf("got %d responses for %d batches", len(responses), len(batches)), nil)
	}

	total := 0
	for _, b := range batches {
		total += len(b.Pages)
	}

	docs := make([]domain.OutputDocument, 0, total)
	for i, batch := range batches {
		segments, ok := reconcile(SplitPages(responses[i]), len(batch.Pages))
		if !ok {
			return nil, domain.ReconciliationError(batch.Index, len(batch.Pages), len(SplitPages(responses[i])))
		}

		for j, segment := range segments {
			docs = append(docs, domain.OutputDocument{
				Content: segment,
				Metadata: domain.DocumentMetadata{
					Source: source,
					Page:   batch.Pages[j].Index,
				},
			})
		}
	}
	return docs, nil
}

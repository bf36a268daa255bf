package extract

import (
	"fmt"

	"github.com/spherical/lecture-ingest/internal/domain"
)

// BatchCount returns how many batches n pages make at batch size k
func BatchCount(n, k int) int {
	if n <= 0 || k <= 0 {
		return 0
	}
	return (n + k - 1) / k
}

// Partition splits encoded pages into contiguous batches of at most size pages.
// Batch i covers pages [i*size, min((i+1)*size, n)); only the last batch may be short.
func Partition(pages []domain.EncodedPage, size int) ([]domain.Batch, error) {
	if size < 1 {
		return nil, domain.ConfigError(fmt.Sprintf("batch size must be at least 1, got %d", size), nil)
	}

	batches := make([]domain.Batch, 0, BatchCount(len(pages), size))
	for start := 0; start < len(pages); start += size {
		end := start + size
		if end > len(pages) {
			end = len(pages)
		}
		batches = append(batches, domain.Batch{
			Index: len(batches),
			Pages: pages[start:end:end],
		})
	}
	return batches, nil
}

package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/spherical/lecture-ingest/internal/domain"
)

// DefaultSubject is the course material described to the model
const DefaultSubject = "deep learning"

// BuildPrompt creates the extraction instruction sent with every batch.
// The page separator it asks for is the one the assembler splits on.
func BuildPrompt(subject string) string {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}

	return fmt.Sprintf(`The provided documents are images of PDF pages of lecture slides on %s.
They contain LaTeX equations, images, and text.

Extract the text, images and equations from every slide and convert everything to markdown.
Some of the equations may be complicated.

RULES:
- The markdown must be clean and easy to read.
- Convert every math equation to LaTeX, delimited by $$ on both sides.
- For each image, give a description and, if you can, its source.
- Produce exactly one section per image, in the order the images were given.
- Separate consecutive pages with a line containing only %s.
- Do not add a separator before the first page or after the last page.
- Respond with the markdown only.`, subject, domain.PageSeparator)
}

// LoadPrompt reads a custom prompt from disk, falling back to BuildPrompt
func LoadPrompt(path, subject string) (string, error) {
	if path == "" {
		return BuildPrompt(subject), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", domain.ConfigError("failed to read prompt file", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", domain.ConfigError(fmt.Sprintf("prompt file %s is empty", path), nil)
	}
	return prompt, nil
}

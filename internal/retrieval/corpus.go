package retrieval

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dohr-michael/advisorbot/internal/config"
)

// LoadCorpus discovers files matching the configured glob patterns,
// splits each into overlapping chunks, and upserts them into the
// engine. Returns the total number of chunks written.
func LoadCorpus(ctx context.Context, e *Engine, cfg config.RetrievalConfig) (int, error) {
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = 500
	}
	overlap := cfg.ChunkOverlap
	if overlap == 0 {
		overlap = 50
	}

	total := 0
	for _, pattern := range cfg.CorpusDirs {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return total, fmt.Errorf("corpus glob %q: %w", pattern, err)
		}

		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return total, fmt.Errorf("read corpus file %q: %w", path, err)
			}

			chunks := SplitText(string(data), chunkSize, overlap)
			for i, chunk := range chunks {
				id := fmt.Sprintf("%s#%d", path, i)
				if err := e.Upsert(ctx, id, chunk, path); err != nil {
					return total, fmt.Errorf("upsert chunk %q: %w", id, err)
				}
				total++
			}
		}
	}

	return total, nil
}

// SplitText splits text into overlapping chunks of approximately
// chunkSize runes, breaking on the nearest preceding whitespace so
// words aren't sheared in half.
func SplitText(text string, chunkSize, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}

		breakAt := end
		for i := end; i > start+chunkSize/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				breakAt = i
				break
			}
		}

		chunks = append(chunks, strings.TrimSpace(string(runes[start:breakAt])))

		next := breakAt - overlap
		if next <= start {
			next = breakAt
		}
		for next < breakAt && runes[next-1] != ' ' && runes[next-1] != '\n' {
			next++
		}
		start = next
	}

	return chunks
}

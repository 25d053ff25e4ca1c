package retrieval

import (
	"strings"
	"testing"
)

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	chunks := SplitText("a short policy sentence.", 500, 50)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitText_LongTextProducesMultipleChunks(t *testing.T) {
	text := strings.Repeat("word ", 400) // 2000 runes
	chunks := SplitText(text, 500, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
}

func TestSplitText_BreaksOnWhitespaceNotMidWord(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta ", 30)
	chunks := SplitText(text, 100, 10)
	vocab := map[string]bool{}
	for _, w := range strings.Fields(text) {
		vocab[w] = true
	}
	for _, c := range chunks {
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk has untrimmed whitespace: %q", c)
		}
		for _, w := range strings.Fields(c) {
			if !vocab[w] {
				t.Errorf("chunk contains split word %q: %q", w, c)
			}
		}
	}
}

func TestSplitText_EmptyInputProducesNoChunks(t *testing.T) {
	chunks := SplitText("   \n\t  ", 500, 50)
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for blank input, got %d", len(chunks))
	}
}

func TestSplitText_OverlapProducesSharedBoundaryContent(t *testing.T) {
	text := strings.Repeat("token ", 200)
	chunks := SplitText(text, 200, 40)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	// the overlap window means the end of chunk 0 and the start of
	// chunk 1 should share at least one common word.
	firstWords := strings.Fields(chunks[0])
	secondWords := strings.Fields(chunks[1])
	if len(firstWords) == 0 || len(secondWords) == 0 {
		t.Fatal("expected non-empty chunks")
	}
	last := firstWords[len(firstWords)-1]
	shared := false
	for _, w := range secondWords {
		if w == last {
			shared = true
			break
		}
	}
	if !shared {
		t.Errorf("expected chunk 1 to repeat chunk 0's last word %q, got %q", last, chunks[1])
	}
}

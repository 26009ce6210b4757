package parser

import (
	"fmt"
	"sort"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

// SplitText cuts text into chunks of at most size characters where every
// chunk after the first starts with the last overlap characters of its
// predecessor. A chunk ends right after the last separator inside its window.
// Without one the window is cut hard at size characters, unless the unit
// crossing that point is itself longer than size: such a unit is kept whole
// and the chunk runs on to the next separator. An empty separator splits
// between any two characters. Lengths are counted in runes.
func SplitText(text string, size, overlap int, separator string) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	bounds := boundaries(runes, []rune(separator))

	var chunks []string
	start := 0
	for {
		end := n
		if n-start > size {
			end = nextEnd(bounds, start, size, overlap, n)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
		start = end - overlap
	}
	return chunks, nil
}

// nextEnd picks the last boundary in (start+overlap, start+size]. Failing
// that it cuts at start+size, or at the end of the crossing unit when that
// unit does not fit in size on its own.
func nextEnd(bounds []int, start, size, overlap, n int) int {
	limit := start + size
	// first boundary strictly greater than limit
	i := sort.SearchInts(bounds, limit+1)
	if i > 0 && bounds[i-1] > start+overlap {
		return bounds[i-1]
	}
	unitStart, unitEnd := 0, n
	if i > 0 {
		unitStart = bounds[i-1]
	}
	if i < len(bounds) {
		unitEnd = bounds[i]
	}
	if unitEnd-unitStart > size {
		return unitEnd
	}
	return limit
}

// boundaries lists every position p where runes[:p] ends with sep, in ascending order.
func boundaries(runes, sep []rune) []int {
	if len(sep) == 0 {
		out := make([]int, 0, len(runes))
		for p := 1; p <= len(runes); p++ {
			out = append(out, p)
		}
		return out
	}
	var out []int
	for p := len(sep); p <= len(runes); p++ {
		if matchAt(runes, sep, p-len(sep)) {
			out = append(out, p)
		}
	}
	return out
}

func matchAt(runes, sep []rune, at int) bool {
	for j := range sep {
		if runes[at+j] != sep[j] {
			return false
		}
	}
	return true
}

// Chunks splits raw text with the configured chunking parameters.
func Chunks(text string, cfg config.RAGConfig) ([]models.Chunk, error) {
	parts, err := SplitText(text, cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separator)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = models.Chunk{Index: i, Content: p}
	}
	return chunks, nil
}

// JoinChunks reverses SplitText by dropping the overlap from every chunk but the first.
func JoinChunks(chunks []string, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			if len(r) < overlap {
				continue
			}
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}

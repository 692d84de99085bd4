package ingest

// DefaultChunkSize is the default chunk window in characters.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default overlap between consecutive chunks.
const DefaultChunkOverlap = 200

// Splitter cuts text into fixed-size overlapping windows. Windows are
// measured in runes so multi-byte text never splits mid-character.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Invalid parameters fall back to defaults.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split returns the text's chunk windows in document order. Empty text
// produces no segments.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)
	step := s.chunkSize - s.overlap

	segments := make([]string, 0, total/step+1)
	for start := 0; start < total; start += step {
		end := start + s.chunkSize
		if end > total {
			end = total
		}
		segments = append(segments, string(runes[start:end]))
		if end == total {
			break
		}
	}
	return segments
}

// Package chunker splits extracted document text into overlapping windows.
package chunker

const (
	// DefaultWindow is the chunk length in characters.
	DefaultWindow = 1800
	// DefaultOverlap is the number of characters shared by adjacent chunks.
	DefaultOverlap = 200
)

// Chunk is one window of text.
type Chunk struct {
	Index   int
	Content string
}

// Splitter produces fixed-size overlapping windows over text.
type Splitter struct {
	window  int
	overlap int
}

// New returns a splitter. overlap must be smaller than window.
func New(window, overlap int) *Splitter {
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 || overlap >= window {
		overlap = 0
	}
	return &Splitter{window: window, overlap: overlap}
}

// Split returns every chunk of text. Empty text yields no chunks.
func Split(text string) []Chunk {
	return New(DefaultWindow, DefaultOverlap).Split(text)
}

// Split returns every chunk of text.
func (s *Splitter) Split(text string) []Chunk {
	return s.SplitFrom(text, 0)
}

// SplitFrom returns the chunks of text starting at index start. The result is
// identical to Split(text)[start:], so an interrupted ingestion can resume.
func (s *Splitter) SplitFrom(text string, start int) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.window - s.overlap
	var chunks []Chunk
	for i, pos := 0, 0; pos < len(runes); i, pos = i+1, pos+step {
		end := pos + s.window
		if end > len(runes) {
			end = len(runes)
		}
		if i >= start {
			chunks = append(chunks, Chunk{Index: i, Content: string(runes[pos:end])})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

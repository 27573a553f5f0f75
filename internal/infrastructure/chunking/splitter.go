package chunking

const (
	defaultWindowSize = 4000
	defaultOverlap    = 200
)

// Window is a slice of a longer text. Offset is the rune index of the first
// rune of Text inside the source.
type Window struct {
	Text   string
	Offset int
}

// Splitter cuts text into overlapping rune windows so a size-limited model can
// see all of it. Overlap keeps values that straddle a boundary whole in at
// least one window.
type Splitter struct {
	WindowSize int
	Overlap    int
}

func NewSplitter(windowSize, overlap int) *Splitter {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= windowSize {
		overlap = windowSize / 4
	}
	return &Splitter{
		WindowSize: windowSize,
		Overlap:    overlap,
	}
}

// Windows never trims: Offset plus a rune index in Text is always a valid rune
// index in text.
func (s *Splitter) Windows(text string) []Window {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.WindowSize {
		return []Window{{Text: text, Offset: 0}}
	}

	step := s.WindowSize - s.Overlap
	if step <= 0 {
		step = s.WindowSize
	}

	out := make([]Window, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.WindowSize, len(runes))
		out = append(out, Window{Text: string(runes[start:end]), Offset: start})
		if end == len(runes) {
			break
		}
	}
	return out
}

package controller

import "strings"

// textBuffer accumulates the streamed tokens of one turn. It is append-only
// until sealed; the controller lock guards it.
type textBuffer struct {
	chunks []string
	length int
	sealed bool
}

func newTextBuffer() *textBuffer {
	return &textBuffer{}
}

// AddChunk appends chunk. Chunks arriving after Replace are dropped.
func (b *textBuffer) AddChunk(chunk string) {
	if b.sealed {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.length += len(chunk)
}

// Replace seals the buffer with text as its final content.
func (b *textBuffer) Replace(text string) {
	b.chunks = []string{text}
	b.length = len(text)
	b.sealed = true
}

func (b *textBuffer) String() string {
	var s strings.Builder
	s.Grow(b.length)
	for _, chunk := range b.chunks {
		s.WriteString(chunk)
	}
	return s.String()
}

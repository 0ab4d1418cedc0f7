package pcm

import (
	"errors"
	"io"
	"time"
)

// Writer is a sink for chunks of audio data.
type Writer interface {
	Write(Chunk) error
}

var _ Writer = WriteFunc(nil)

// WriteFunc adapts a function to Writer.
type WriteFunc func(Chunk) error

// Write implements Writer.
func (f WriteFunc) Write(c Chunk) error {
	return f(c)
}

// Discard is a Writer that drops every chunk.
var Discard Writer = discard{}

type discard struct{}

func (discard) Write(Chunk) error {
	return nil
}

// ChunkWriter adapts an io.Writer to Writer by calling WriteTo on each chunk.
func ChunkWriter(w io.Writer) Writer {
	return WriteFunc(func(c Chunk) error {
		_, err := c.WriteTo(w)
		return err
	})
}

// DefaultChunkDuration is the pacing unit for streamed audio.
const DefaultChunkDuration = 20 * time.Millisecond

// Copy reads r in DefaultChunkDuration pieces and writes each one to w as a
// DataChunk of the given format. A short final piece is still delivered.
// Copy returns nil when r reaches EOF.
func Copy(w Writer, r io.Reader, format Format) error {
	return CopyChunked(w, r, format, DefaultChunkDuration)
}

// CopyChunked is Copy with an explicit chunk duration.
func CopyChunked(w Writer, r io.Reader, format Format, d time.Duration) error {
	size := int(format.BytesInDuration(d))
	if size < 2 {
		size = 2
	}
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := w.Write(format.DataChunk(buf[:n])); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
}

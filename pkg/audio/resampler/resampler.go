package resampler

import (
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Converter converts pushed PCM from one Format to another. It keeps the
// filter state between calls so a stream can be fed in arbitrary pieces,
// including pieces that split a sample. A Converter is not safe for
// concurrent use.
type Converter struct {
	src, dst  Format
	resampler resampling.Resampler
	carry     []byte
}

// NewConverter creates a Converter from src to dst.
func NewConverter(src, dst Format) (*Converter, error) {
	if src.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d -> %d", src.SampleRate, dst.SampleRate)
	}
	c := &Converter{src: src, dst: dst}
	if src.SampleRate != dst.SampleRate {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dst.SampleRate),
			Channels:   dst.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		c.resampler = r
	}
	return c, nil
}

// Convert consumes p and returns whatever converted output is ready. The
// returned slice is newly allocated. Bytes that do not complete a source
// sample are held until the next call.
func (c *Converter) Convert(p []byte) ([]byte, error) {
	buf := append(c.carry, p...)
	whole := len(buf) / c.src.sampleBytes() * c.src.sampleBytes()
	c.carry = append([]byte(nil), buf[whole:]...)
	buf = buf[:whole]
	if len(buf) == 0 {
		return nil, nil
	}

	switch {
	case c.src.Stereo && !c.dst.Stereo:
		buf = buf[:stereoToMono(buf)]
	case !c.src.Stereo && c.dst.Stereo:
		buf = monoToStereo(buf)
	default:
		buf = append([]byte(nil), buf...)
	}

	if c.resampler == nil {
		return buf, nil
	}

	out, err := c.resampler.Process(toFloat(buf))
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	b := fromFloat(out)
	return b[:len(b)/c.dst.sampleBytes()*c.dst.sampleBytes()], nil
}

// Bytes converts a complete buffer in one call.
func Bytes(data []byte, src, dst Format) ([]byte, error) {
	c, err := NewConverter(src, dst)
	if err != nil {
		return nil, err
	}
	return c.Convert(data)
}

// Resampler is a resampling io.ReadCloser.
type Resampler interface {
	io.ReadCloser
	CloseWithError(error) error
}

// Reader pulls PCM from an io.Reader and yields it converted to the
// destination format.
type Reader struct {
	src     io.Reader
	conv    *Converter
	readBuf []byte

	mu       sync.Mutex
	closeErr error
	pending  []byte
}

var _ Resampler = (*Reader)(nil)

// New creates a Reader that converts src from srcFmt to dstFmt.
func New(src io.Reader, srcFmt, dstFmt Format) (*Reader, error) {
	conv, err := NewConverter(srcFmt, dstFmt)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:     src,
		conv:    conv,
		readBuf: make([]byte, 4096),
	}, nil
}

// Read fills p with converted samples. It is not safe for concurrent use
// with itself, but may race with Close.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.pending) == 0 {
		if r.closeErr != nil {
			return 0, r.closeErr
		}
		n, err := r.src.Read(r.readBuf)
		if n > 0 {
			out, cerr := r.conv.Convert(r.readBuf[:n])
			if cerr != nil {
				return 0, cerr
			}
			r.pending = out
		}
		if err != nil {
			if len(r.pending) > 0 {
				break
			}
			return 0, err
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Close stops the reader. Subsequent reads return io.ErrClosedPipe.
func (r *Reader) Close() error {
	return r.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError stops the reader; subsequent reads return err.
func (r *Reader) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.pending = nil
	return nil
}

func toFloat(b []byte) []float64 {
	out := make([]float64, len(b)/2)
	for i := range out {
		out[i] = float64(int16(b[i*2])|int16(b[i*2+1])<<8) / 32768.0
	}
	return out
}

func fromFloat(in []float64) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		var v int16
		switch {
		case s >= 1.0:
			v = 32767
		case s <= -1.0:
			v = -32768
		default:
			v = int16(s * 32767.0)
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// stereoToMono averages L and R in place and returns the mono byte length.
func stereoToMono(b []byte) int {
	frames := len(b) / 4
	for i := range frames {
		j, k := i*4, i*2
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		b[k] = byte(m)
		b[k+1] = byte(m >> 8)
	}
	return frames * 2
}

// monoToStereo duplicates each sample into both channels.
func monoToStereo(b []byte) []byte {
	out := make([]byte, len(b)*2)
	for i := 0; i+1 < len(b); i += 2 {
		j := i * 2
		out[j], out[j+1] = b[i], b[i+1]
		out[j+2], out[j+3] = b[i], b[i+1]
	}
	return out
}

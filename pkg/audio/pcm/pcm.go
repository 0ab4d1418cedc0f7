package pcm

import (
	"fmt"
	"io"
	"time"
)

const (
	// L16Mono16K is audio/L16; rate=16000; channels=1, the microphone format
	// expected by both voice backends.
	L16Mono16K Format = iota
	// L16Mono24K is audio/L16; rate=24000; channels=1, the playback format
	// produced by both voice backends.
	L16Mono24K
	// L16Mono48K is audio/L16; rate=48000; channels=1.
	L16Mono48K
)

// Format is a 16-bit little-endian mono PCM layout at a fixed sample rate.
type Format int

// FormatForRate returns the Format with the given sample rate.
func FormatForRate(rate int) (Format, error) {
	switch rate {
	case 16000:
		return L16Mono16K, nil
	case 24000:
		return L16Mono24K, nil
	case 48000:
		return L16Mono48K, nil
	}
	return 0, fmt.Errorf("pcm: unsupported sample rate %d", rate)
}

// SampleRate returns the sample rate in Hz.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono16K:
		return 16000
	case L16Mono24K:
		return 24000
	case L16Mono48K:
		return 48000
	}
	panic("pcm: invalid format")
}

// Channels is always 1; the stereo recording layout is built by the recorder.
func (f Format) Channels() int {
	return 1
}

// Depth returns the bit depth.
func (f Format) Depth() int {
	return 16
}

// Samples returns the number of samples in the given number of bytes.
func (f Format) Samples(bytes int64) int64 {
	return bytes * 8 / int64(f.Channels()) / int64(f.Depth())
}

// SamplesInDuration returns the number of samples in d.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate()) * d / time.Second)
}

// BytesInDuration returns the number of bytes in d.
func (f Format) BytesInDuration(d time.Duration) int64 {
	return f.SamplesInDuration(d) * int64(f.Channels()) * int64(f.Depth()) / 8
}

// Duration returns the playing time of the given number of bytes.
func (f Format) Duration(bytes int64) time.Duration {
	return time.Duration(f.Samples(bytes)) * time.Second / time.Duration(f.SampleRate())
}

// BytesRate returns the number of bytes per second.
func (f Format) BytesRate() int {
	return f.SampleRate() * f.Channels() * f.Depth() / 8
}

// MIMEType returns the MIME type used by the Gemini Live API for this format.
func (f Format) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate())
}

func (f Format) String() string {
	switch f {
	case L16Mono16K, L16Mono24K, L16Mono48K:
		return fmt.Sprintf("audio/L16; rate=%d; channels=1", f.SampleRate())
	}
	return fmt.Sprintf("pcm.Format(%d)", int(f))
}

// Chunk is a chunk of audio data in a known format.
type Chunk interface {
	Len() int64
	Format() Format
	WriteTo(w io.Writer) (int64, error)
}

// SilenceChunk returns a chunk of d worth of silence.
func (f Format) SilenceChunk(d time.Duration) Chunk {
	return &SilenceChunk{
		Duration: d,
		len:      f.BytesInDuration(d),
		fmt:      f,
	}
}

// DataChunk wraps data as a Chunk of format f.
func (f Format) DataChunk(data []byte) Chunk {
	return &DataChunk{Data: data, fmt: f}
}

// DataChunk is a chunk of raw samples.
type DataChunk struct {
	Data []byte
	fmt  Format
}

func (c *DataChunk) Len() int64 {
	return int64(len(c.Data))
}

func (c *DataChunk) Format() Format {
	return c.fmt
}

func (c *DataChunk) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.Data)
	return int64(n), err
}

// SilenceChunk is a chunk of zero samples. It is used to pad recording
// tracks over gaps in frame delivery.
type SilenceChunk struct {
	Duration time.Duration
	len      int64
	fmt      Format
}

func (c *SilenceChunk) Len() int64 {
	return c.len
}

func (c *SilenceChunk) Format() Format {
	return c.fmt
}

var zeros [32000]byte

// WriteTo writes c.Len() zero bytes to w.
func (c *SilenceChunk) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for remain := c.len; remain > 0; {
		b := zeros[:min(remain, int64(len(zeros)))]
		n, err := w.Write(b)
		written += int64(n)
		if err != nil {
			return written, err
		}
		remain -= int64(n)
	}
	return written, nil
}

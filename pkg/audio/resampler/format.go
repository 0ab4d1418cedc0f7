package resampler

import "github.com/eburon/brokerdial/pkg/audio/pcm"

// Format describes 16-bit signed little-endian PCM at a sample rate, mono or
// interleaved stereo.
type Format struct {
	SampleRate int
	Stereo     bool
}

// FromPCM returns the mono Format matching a pcm.Format.
func FromPCM(f pcm.Format) Format {
	return Format{SampleRate: f.SampleRate()}
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

func (f Format) sampleBytes() int {
	return 2 * f.channels()
}

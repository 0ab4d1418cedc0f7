package resampler

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func sine(n, rate int, freq float64) []byte {
	b := make([]byte, n*2)
	for i := range n {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		b[i*2] = byte(v)
		b[i*2+1] = byte(v >> 8)
	}
	return b
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		ch     int
		bytes  int
	}{
		{"mono", Format{SampleRate: 16000}, 1, 2},
		{"stereo", Format{SampleRate: 48000, Stereo: true}, 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.channels(); got != tt.ch {
				t.Errorf("channels() = %d, want %d", got, tt.ch)
			}
			if got := tt.format.sampleBytes(); got != tt.bytes {
				t.Errorf("sampleBytes() = %d, want %d", got, tt.bytes)
			}
		})
	}
}

func TestConverter_Passthrough(t *testing.T) {
	c, err := NewConverter(Format{SampleRate: 16000}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	in := sine(160, 16000, 440)
	// Split mid-sample: the odd byte is carried to the next call.
	a, err := c.Convert(in[:101])
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Convert(in[101:])
	if err != nil {
		t.Fatal(err)
	}
	if got := append(a, b...); !bytes.Equal(got, in) {
		t.Errorf("passthrough changed data: %d bytes vs %d", len(got), len(in))
	}
}

func TestConverter_ChannelConversion(t *testing.T) {
	mono := []byte{0x10, 0x00, 0x20, 0x00}
	stereo, err := Bytes(mono, Format{SampleRate: 8000}, Format{SampleRate: 8000, Stereo: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x10, 0x00, 0x10, 0x00, 0x20, 0x00, 0x20, 0x00}
	if !bytes.Equal(stereo, want) {
		t.Errorf("mono->stereo = %v, want %v", stereo, want)
	}

	back, err := Bytes(stereo, Format{SampleRate: 8000, Stereo: true}, Format{SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, mono) {
		t.Errorf("stereo->mono = %v, want %v", back, mono)
	}
}

func TestConverter_RateChange(t *testing.T) {
	c, err := NewConverter(Format{SampleRate: 48000}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	var out []byte
	in := sine(48000, 48000, 440)
	for i := 0; i < len(in); i += 1920 {
		b, err := c.Convert(in[i:min(i+1920, len(in))])
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, b...)
	}
	if len(out)%2 != 0 {
		t.Fatalf("output not sample aligned: %d", len(out))
	}
	// One second in, roughly one second at 16k out (filter delay allowed).
	if samples := len(out) / 2; samples < 14000 || samples > 16100 {
		t.Errorf("got %d samples, want about 16000", samples)
	}
}

func TestNewConverter_InvalidRate(t *testing.T) {
	if _, err := NewConverter(Format{}, Format{SampleRate: 16000}); err == nil {
		t.Error("expected error for zero rate")
	}
}

func TestReader(t *testing.T) {
	in := sine(1600, 16000, 300)
	r, err := New(bytes.NewReader(in), Format{SampleRate: 16000}, Format{SampleRate: 16000, Stereo: true})
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2*len(in) {
		t.Errorf("len = %d, want %d", len(out), 2*len(in))
	}
}

func TestReader_Close(t *testing.T) {
	r, err := New(bytes.NewReader(make([]byte, 64)), Format{SampleRate: 16000}, Format{SampleRate: 24000})
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	if _, err := r.Read(make([]byte, 16)); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Read after Close = %v, want ErrClosedPipe", err)
	}

	custom := errors.New("custom")
	r2, _ := New(bytes.NewReader(nil), Format{SampleRate: 16000}, Format{SampleRate: 16000})
	r2.CloseWithError(custom)
	if _, err := r2.Read(make([]byte, 16)); !errors.Is(err, custom) {
		t.Errorf("Read after CloseWithError = %v, want custom", err)
	}
}

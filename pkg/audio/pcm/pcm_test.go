package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"
)

func samples(vals ...int16) []byte {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func TestFormatMath(t *testing.T) {
	tests := []struct {
		format Format
		rate   int
		bytes  int64
	}{
		{L16Mono16K, 16000, 640},
		{L16Mono24K, 24000, 960},
		{L16Mono48K, 48000, 1920},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.SampleRate(); got != tt.rate {
				t.Errorf("SampleRate() = %d, want %d", got, tt.rate)
			}
			if got := tt.format.BytesInDuration(20 * time.Millisecond); got != tt.bytes {
				t.Errorf("BytesInDuration(20ms) = %d, want %d", got, tt.bytes)
			}
			if got := tt.format.Duration(tt.bytes); got != 20*time.Millisecond {
				t.Errorf("Duration(%d) = %v, want 20ms", tt.bytes, got)
			}
			f, err := FormatForRate(tt.rate)
			if err != nil || f != tt.format {
				t.Errorf("FormatForRate(%d) = %v, %v", tt.rate, f, err)
			}
		})
	}

	if _, err := FormatForRate(44100); err == nil {
		t.Error("FormatForRate(44100) should fail")
	}
	if got := L16Mono16K.MIMEType(); got != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType() = %q", got)
	}
}

func TestSilenceChunk(t *testing.T) {
	c := L16Mono16K.SilenceChunk(time.Second)
	if c.Len() != 32000 {
		t.Fatalf("Len() = %d, want 32000", c.Len())
	}
	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 32000 || buf.Len() != 32000 {
		t.Errorf("wrote %d bytes (buffer %d), want 32000", n, buf.Len())
	}
	if bytes.Count(buf.Bytes(), []byte{0}) != 32000 {
		t.Error("silence should be all zeros")
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want float64
	}{
		{"empty", nil, 0},
		{"single byte", []byte{0xff}, 0},
		{"silence", samples(0, 0, 0, 0), 0},
		{"full scale", samples(-32768, -32768), 1},
		{"half scale", samples(16384, -16384, 16384, -16384), 0.5},
		{"odd tail ignored", append(samples(16384, -16384), 0x7f), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := float64(Level(tt.data))
			if math.Abs(got-tt.want) > 1e-4 {
				t.Errorf("Level() = %f, want %f", got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("Level() = %f out of [0,1]", got)
			}
		})
	}
}

func TestFrameDuration(t *testing.T) {
	f := Frame{Direction: Inbound, Format: L16Mono24K, Data: make([]byte, 4800)}
	if got := f.Duration(); got != 100*time.Millisecond {
		t.Errorf("Duration() = %v, want 100ms", got)
	}
	if f.Chunk().Len() != 4800 {
		t.Errorf("Chunk().Len() = %d", f.Chunk().Len())
	}
	if Inbound.String() != "inbound" || Outbound.String() != "outbound" {
		t.Error("unexpected Direction strings")
	}
}

func TestCopy(t *testing.T) {
	// 50ms at 16k: two full 20ms chunks and one 10ms tail.
	src := bytes.NewReader(make([]byte, 1600))
	var sizes []int64
	err := Copy(WriteFunc(func(c Chunk) error {
		if c.Format() != L16Mono16K {
			t.Errorf("Format() = %v", c.Format())
		}
		sizes = append(sizes, c.Len())
		return nil
	}), src, L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{640, 640, 320}
	if len(sizes) != len(want) {
		t.Fatalf("chunks = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d = %d, want %d", i, sizes[i], want[i])
		}
	}
}

func TestCopy_WriterError(t *testing.T) {
	boom := errors.New("boom")
	err := Copy(WriteFunc(func(Chunk) error { return boom }), bytes.NewReader(make([]byte, 640)), L16Mono16K)
	if !errors.Is(err, boom) {
		t.Errorf("Copy() = %v, want boom", err)
	}
}

func TestCopy_ReaderError(t *testing.T) {
	r := io.MultiReader(bytes.NewReader(make([]byte, 100)), errReader{io.ErrClosedPipe})
	err := Copy(Discard, r, L16Mono16K)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Copy() = %v, want ErrClosedPipe", err)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestAtomicFloat32(t *testing.T) {
	var v AtomicFloat32
	if v.Load() != 0 {
		t.Fatal("zero value should load 0")
	}
	v.Store(0.25)
	if old := v.Swap(0); old != 0.25 {
		t.Errorf("Swap() = %f, want 0.25", old)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(x float32) {
			defer wg.Done()
			v.StoreMax(x)
		}(float32(i) / 100)
	}
	wg.Wait()
	if got := v.Load(); got != 1 {
		t.Errorf("StoreMax result = %f, want 1", got)
	}
	v.StoreMax(0.5)
	if got := v.Load(); got != 1 {
		t.Errorf("StoreMax lowered value to %f", got)
	}
}

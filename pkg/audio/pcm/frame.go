package pcm

import (
	"encoding/binary"
	"math"
	"time"
)

// Direction tells which party a frame belongs to.
type Direction int

const (
	// Outbound audio flows from the local broker to the remote agent.
	Outbound Direction = iota
	// Inbound audio flows from the remote agent to the local broker.
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	}
	return "unknown"
}

// Frame is one chunk of PCM travelling through a call.
type Frame struct {
	Direction Direction
	// Time is the wall-clock instant the frame was captured or received.
	Time   time.Time
	Format Format
	Data   []byte
}

// Duration returns the playing time of the frame.
func (f Frame) Duration() time.Duration {
	return f.Format.Duration(int64(len(f.Data)))
}

// Chunk returns the frame payload as a DataChunk.
func (f Frame) Chunk() Chunk {
	return f.Format.DataChunk(f.Data)
}

// Level returns the RMS level of little-endian int16 samples normalized to
// full scale and clamped to [0, 1]. A trailing odd byte is ignored and an
// empty buffer has level 0.
func Level(data []byte) float32 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(data[i*2:])))
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(n)) / 32768
	if rms > 1 {
		return 1
	}
	return float32(rms)
}

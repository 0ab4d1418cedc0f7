// Package pcm describes the raw audio that moves through a call: 16-bit
// little-endian mono sample formats, chunks of samples or silence, and
// directional frames tagged with the wall-clock time they were seen.
//
// Key types:
//   - Format: sample rate and byte/duration arithmetic
//   - Chunk: DataChunk for samples, SilenceChunk for padding
//   - Frame: a chunk plus its Direction and capture time
//   - Writer: sink for chunks, used to cut streams into 20ms pieces via Copy
//
// Level computes the normalized RMS used by the level meter.
package pcm

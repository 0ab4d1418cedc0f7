// Package audio groups the call audio packages:
//
//   - pcm: L16 formats, chunks and directional frames
//   - meter: fixed-cadence level metering per direction
//   - resampler: sample-rate and channel conversion between device and
//     backend formats
package audio

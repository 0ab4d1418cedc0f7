// Package resampler converts 16-bit PCM between sample rates and channel
// layouts using the pure Go github.com/tphakala/go-audio-resampling library.
//
// Converter is push-based and keeps filter state across calls; the call
// uplink feeds it device frames as they arrive. Reader wraps an io.Reader
// for pull-based streams, and Bytes converts a whole buffer at once, which
// is how the recorder aligns both call directions to one rate.
package resampler

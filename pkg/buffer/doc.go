// Package buffer provides the two bounded buffers used around a live call.
//
//   - RingBuffer: a fixed-size ring that overwrites the oldest elements when
//     full and blocks readers (with context cancellation) while empty. The
//     websocket audio device queues microphone PCM in one so a slow call
//     never stalls the socket reader.
//   - Window: a non-blocking sliding window of the most recent N elements,
//     used for the event log of the interactive call screen.
//
// Both are safe for concurrent use.
package buffer

// Package realtime is a websocket client for OpenAI-compatible realtime
// voice APIs.
//
// Only the audio conversation subset is implemented: configuring the
// session, streaming microphone PCM in, and receiving model PCM out.
//
//	c := realtime.NewClient(apiKey)
//	conn, err := c.Connect(ctx, "")
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//	conn.UpdateSession(&realtime.SessionConfig{Instructions: prompt})
//	for ev, err := range conn.Events() {
//	    ...
//	}
//
// Audio in both directions is PCM16 at 24 kHz.
package realtime

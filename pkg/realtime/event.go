package realtime

// Client event types.
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeResponseCreate         = "response.create"
)

// Server event types handled by the call transport. Other types are still
// delivered and can be inspected through ServerEvent.Type.
const (
	EventTypeError                         = "error"
	EventTypeSessionCreated                = "session.created"
	EventTypeSessionUpdated                = "session.updated"
	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"
	EventTypeResponseAudioDelta            = "response.audio.delta"
	EventTypeResponseAudioDone             = "response.audio.done"
	EventTypeResponseAudioTranscriptDelta  = "response.audio_transcript.delta"
	EventTypeResponseDone                  = "response.done"
)

// ServerEvent is an event received from the server. Only the fields the
// call transport reads are decoded.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	// Session is set for session.created and session.updated.
	Session *SessionResource `json:"session,omitzero"`

	// Error is set for error events.
	Error *Error `json:"error,omitzero"`

	ResponseID string `json:"response_id,omitzero"`
	ItemID     string `json:"item_id,omitzero"`

	// Delta carries base64 audio for response.audio.delta and text for
	// transcript deltas.
	Delta string `json:"delta,omitzero"`

	// Audio is Delta decoded, for response.audio.delta.
	Audio []byte `json:"-"`
}

// SessionResource is the server's view of the session.
type SessionResource struct {
	ID                string `json:"id"`
	Model             string `json:"model,omitzero"`
	Voice             string `json:"voice,omitzero"`
	Instructions      string `json:"instructions,omitzero"`
	InputAudioFormat  string `json:"input_audio_format,omitzero"`
	OutputAudioFormat string `json:"output_audio_format,omitzero"`
}

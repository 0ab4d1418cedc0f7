package realtime

// AudioFormatPCM16 is 16-bit little-endian mono PCM at 24 kHz.
const AudioFormatPCM16 = "pcm16"

// SampleRate is the PCM16 sample rate in both directions.
const SampleRate = 24000

// Modalities.
const (
	ModalityText  = "text"
	ModalityAudio = "audio"
)

// VADServerVAD enables server-side turn detection.
const VADServerVAD = "server_vad"

// SessionConfig is the payload of session.update.
type SessionConfig struct {
	Modalities        []string       `json:"modalities,omitzero"`
	Instructions      string         `json:"instructions,omitzero"`
	Voice             string         `json:"voice,omitzero"`
	InputAudioFormat  string         `json:"input_audio_format,omitzero"`
	OutputAudioFormat string         `json:"output_audio_format,omitzero"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitzero"`
	Temperature       *float64       `json:"temperature,omitzero"`
}

// TurnDetection configures server voice activity detection.
type TurnDetection struct {
	Type              string   `json:"type"`
	Threshold         *float64 `json:"threshold,omitzero"`
	PrefixPaddingMs   int      `json:"prefix_padding_ms,omitzero"`
	SilenceDurationMs int      `json:"silence_duration_ms,omitzero"`
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
)

// DefaultGeminiModel is the Live API model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// GeminiBackend connects through the Gemini Live API.
type GeminiBackend struct {
	Client *genai.Client
	Model  string
	Voice  string
	Logger *slog.Logger
}

func (b *GeminiBackend) Name() string {
	return "gemini"
}

// Dial opens a Live session with the instruction as system instruction and
// waits for the server's setup acknowledgement.
func (b *GeminiBackend) Dial(ctx context.Context, instruction string) (Stream, error) {
	model := b.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: instruction}},
		},
	}
	if b.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: b.Voice},
			},
		}
	}

	session, err := b.Client.Live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()
	msg, err := session.Receive()
	if err != nil {
		session.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("gemini: await setup: %w", err)
	}
	if msg.SetupComplete == nil {
		session.Close()
		return nil, errors.New("gemini: session rejected before setup completed")
	}

	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &geminiStream{session: session, logger: logger.With("model", model)}, nil
}

type geminiStream struct {
	session *genai.Session
	logger  *slog.Logger

	// Receive may return several audio parts per message.
	pending [][]byte

	closeOnce sync.Once
}

func (s *geminiStream) InputFormat() pcm.Format  { return pcm.L16Mono16K }
func (s *geminiStream) OutputFormat() pcm.Format { return pcm.L16Mono24K }

func (s *geminiStream) Send(data []byte) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: s.InputFormat().MIMEType()},
	})
}

func (s *geminiStream) Recv() ([]byte, error) {
	for len(s.pending) == 0 {
		msg, err := s.session.Receive()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("gemini: receive: %w", err)
		}
		if msg.GoAway != nil {
			s.logger.Info("server going away", "time_left", msg.GoAway.TimeLeft)
		}
		sc := msg.ServerContent
		if sc == nil {
			continue
		}
		if sc.Interrupted {
			s.logger.Debug("model turn interrupted")
		}
		if sc.ModelTurn == nil {
			continue
		}
		for _, part := range sc.ModelTurn.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				s.pending = append(s.pending, part.InlineData.Data)
			}
		}
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, nil
}

func (s *geminiStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.session.Close()
	})
	return err
}

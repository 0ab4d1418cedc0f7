package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/realtime"
)

// RealtimeBackend connects through an OpenAI-compatible realtime websocket
// API.
type RealtimeBackend struct {
	Client *realtime.Client
	Model  string
	Voice  string
	// Greet asks the model to speak first, as the caller on an outbound
	// call normally does.
	Greet  bool
	Logger *slog.Logger
}

func (b *RealtimeBackend) Name() string {
	return "realtime"
}

// Dial opens a websocket session, sends the instruction with session.update
// and waits for the server to acknowledge it.
func (b *RealtimeBackend) Dial(ctx context.Context, instruction string) (Stream, error) {
	conn, err := b.Client.Connect(ctx, b.Model)
	if err != nil {
		return nil, err
	}

	// Unblock the acknowledgement wait below if ctx ends first.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	err = conn.UpdateSession(&realtime.SessionConfig{
		Modalities:        []string{realtime.ModalityAudio, realtime.ModalityText},
		Instructions:      instruction,
		Voice:             b.Voice,
		InputAudioFormat:  realtime.AudioFormatPCM16,
		OutputAudioFormat: realtime.AudioFormatPCM16,
		TurnDetection:     &realtime.TurnDetection{Type: realtime.VADServerVAD},
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := awaitSessionUpdated(conn); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if b.Greet {
		if err := conn.CreateResponse(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &realtimeStream{
		conn:   conn,
		audio:  make(chan []byte, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.pump()
	return s, nil
}

func awaitSessionUpdated(conn *realtime.Conn) error {
	for ev, err := range conn.Events() {
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("realtime: closed before session was accepted")
			}
			return err
		}
		if ev.Type == realtime.EventTypeSessionUpdated {
			return nil
		}
	}
	return errors.New("realtime: closed before session was accepted")
}

type realtimeStream struct {
	conn   *realtime.Conn
	logger *slog.Logger

	audio chan []byte
	done  chan struct{}
	err   error

	closeOnce sync.Once
}

var realtimeFormat = pcm.L16Mono24K

func (s *realtimeStream) InputFormat() pcm.Format  { return realtimeFormat }
func (s *realtimeStream) OutputFormat() pcm.Format { return realtimeFormat }

func (s *realtimeStream) Send(data []byte) error {
	return s.conn.AppendAudio(data)
}

func (s *realtimeStream) pump() {
	defer close(s.done)
	for ev, err := range s.conn.Events() {
		if err != nil {
			var apiErr *realtime.Error
			if errors.As(err, &apiErr) {
				s.logger.Warn("realtime error event", "code", apiErr.Code, "message", apiErr.Message)
				continue
			}
			s.err = err
			return
		}
		switch ev.Type {
		case realtime.EventTypeResponseAudioDelta:
			select {
			case s.audio <- ev.Audio:
			case <-s.conn.Done():
				return
			}
		case realtime.EventTypeInputAudioBufferSpeechStarted:
			s.logger.Debug("caller speech started")
		}
	}
	s.err = io.EOF
}

func (s *realtimeStream) Recv() ([]byte, error) {
	select {
	case b := <-s.audio:
		return b, nil
	case <-s.done:
		select {
		case b := <-s.audio:
			return b, nil
		default:
		}
		if s.err == nil || errors.Is(s.err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("realtime: %w", s.err)
	}
}

func (s *realtimeStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one open realtime session.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	events    chan eventOrError
	closeCh   chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	sessionID string
}

type eventOrError struct {
	event *ServerEvent
	err   error
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	c := &Conn{
		ws:      ws,
		logger:  logger,
		events:  make(chan eventOrError, 64),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func newEventID() string {
	return "evt_" + uuid.NewString()[:12]
}

// UpdateSession sends session.update.
func (c *Conn) UpdateSession(cfg *SessionConfig) error {
	return c.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  cfg,
	})
}

// AppendAudio appends L16 samples to the input audio buffer.
func (c *Conn) AppendAudio(pcm []byte) error {
	return c.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    base64.StdEncoding.EncodeToString(pcm),
	})
}

// CreateResponse asks the model to speak first, before any caller audio.
func (c *Conn) CreateResponse() error {
	return c.send(map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeResponseCreate,
	})
}

// SessionID returns the id from session.created, or "" before it arrives.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Events yields server events until the connection closes. A clean close by
// the server yields io.EOF as the final error; error events are yielded as
// *Error without ending iteration.
func (c *Conn) Events() iter.Seq2[*ServerEvent, error] {
	return func(yield func(*ServerEvent, error) bool) {
		for {
			select {
			case <-c.closeCh:
				return
			case item, ok := <-c.events:
				if !ok {
					return
				}
				if !yield(item.event, item.err) {
					return
				}
			}
		}
	}
}

// Done is closed when Close is called.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) send(event map[string]any) error {
	select {
	case <-c.closeCh:
		return fmt.Errorf("realtime: send: %w", io.ErrClosedPipe)
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.logger.Enabled(context.Background(), slog.LevelDebug) && event["type"] != EventTypeInputAudioBufferAppend {
		if b, err := json.Marshal(event); err == nil {
			c.logger.Debug("send event", "content", truncate(string(b), 500))
		}
	}
	if err := c.ws.WriteJSON(event); err != nil {
		return fmt.Errorf("realtime: send: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			} else {
				err = fmt.Errorf("realtime: read: %w", err)
			}
			c.deliver(eventOrError{err: err})
			return
		}

		ev, err := parseEvent(msg)
		if err != nil {
			c.logger.Warn("drop malformed event", "error", err)
			continue
		}
		if ev.Type != EventTypeResponseAudioDelta {
			c.logger.Debug("recv event", "type", ev.Type, "content", truncate(string(msg), 1000))
		}

		switch ev.Type {
		case EventTypeSessionCreated:
			if ev.Session != nil {
				c.mu.Lock()
				c.sessionID = ev.Session.ID
				c.mu.Unlock()
			}
		case EventTypeError:
			if ev.Error != nil {
				if !c.deliver(eventOrError{err: ev.Error}) {
					return
				}
				continue
			}
		}
		if !c.deliver(eventOrError{event: ev}) {
			return
		}
	}
}

func (c *Conn) deliver(item eventOrError) bool {
	select {
	case <-c.closeCh:
		return false
	case c.events <- item:
		return true
	}
}

func parseEvent(msg []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return nil, fmt.Errorf("realtime: parse event: %w", err)
	}
	if ev.Type == "" {
		return nil, errors.New("realtime: event without type")
	}
	if ev.Type == EventTypeResponseAudioDelta && ev.Delta != "" {
		audio, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			return nil, fmt.Errorf("realtime: decode audio delta: %w", err)
		}
		ev.Audio = audio
	}
	return &ev, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

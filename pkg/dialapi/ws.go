package dialapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/callsession"
	"github.com/eburon/brokerdial/pkg/review"
	"github.com/gorilla/websocket"
)

// Event types pushed to websocket clients.
const (
	EventSnapshot  = "snapshot"
	EventState     = "state"
	EventVolume    = "volume"
	EventRecording = "recording"
	EventPending   = "pending"
	EventPlayback  = "playback"
)

// Event is a server to client text frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Volume is the data of a volume event.
type Volume struct {
	In  float32 `json:"in"`
	Out float32 `json:"out"`
}

// Playback announces the format of the binary frames that follow it.
type Playback struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}

const (
	clientQueue  = 256
	writeTimeout = 5 * time.Second
)

type message struct {
	kind int
	data []byte
}

type client struct {
	conn *websocket.Conn
	send chan message
	done chan struct{}
	once sync.Once

	// Written on the playback goroutine only.
	format pcm.Format
	known  bool
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue drops the message when the client is not keeping up.
func (c *client) enqueue(m message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(m.kind, m.data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) subscribe() {
	m := s.cfg.Manager
	s.unsub = []func(){
		m.OnState(func(st callsession.State) {
			if st == callsession.Connecting {
				s.cfg.Device.Flush()
			}
			s.broadcast(Event{Type: EventState, Data: m.Snapshot()})
		}),
		m.OnVolume(func(in, out float32) {
			s.broadcast(Event{Type: EventVolume, Data: Volume{In: in, Out: out}})
		}),
		m.OnRecording(func(on bool) {
			s.broadcast(Event{Type: EventRecording, Data: on})
		}),
		m.OnPending(func(p *review.PendingRecording) {
			s.broadcast(Event{Type: EventPending, Data: p})
		}),
		s.cfg.Device.OnPlayback(s.playback),
	}
}

func (s *Server) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal event", "type", ev.Type, "error", err)
		return
	}
	for _, c := range s.snapshotClients() {
		c.enqueue(message{kind: websocket.TextMessage, data: data})
	}
}

func (s *Server) playback(f pcm.Frame) {
	for _, c := range s.snapshotClients() {
		if !c.known || c.format != f.Format {
			info, _ := json.Marshal(Event{Type: EventPlayback, Data: Playback{
				SampleRate: f.Format.SampleRate(),
				Channels:   f.Format.Channels(),
			}})
			if !c.enqueue(message{kind: websocket.TextMessage, data: info}) {
				continue
			}
			c.format, c.known = f.Format, true
		}
		c.enqueue(message{kind: websocket.BinaryMessage, data: f.Data})
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade", "error", err)
		return
	}
	c := &client{
		conn: conn,
		send: make(chan message, clientQueue),
		done: make(chan struct{}),
	}

	if data, err := json.Marshal(Event{Type: EventSnapshot, Data: s.cfg.Manager.Snapshot()}); err == nil {
		c.enqueue(message{kind: websocket.TextMessage, data: data})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	log := s.logger.With("remote", r.RemoteAddr)
	log.Info("ui client connected")
	go c.writeLoop()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.close()
		log.Info("ui client disconnected")
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read", "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if err := s.cfg.Device.WriteMic(data); err != nil {
			log.Debug("microphone frame dropped", "error", err)
		}
	}
}

package realtime

import "fmt"

// Error is an error reported by the realtime server, either in an error
// event or as a failed websocket handshake.
type Error struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
	EventID string `json:"event_id,omitzero"`

	// HTTPStatus is set when the handshake was rejected.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.HTTPStatus != 0:
		return fmt.Sprintf("realtime: %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
	case e.Code != "":
		return fmt.Sprintf("realtime: %s: %s", e.Code, e.Message)
	case e.Type != "":
		return fmt.Sprintf("realtime: %s: %s", e.Type, e.Message)
	}
	return "realtime: " + e.Message
}

package callsession

import "encoding/json"

// State is the lifecycle state of the call manager.
type State int

const (
	Idle State = iota
	Connecting
	Active
	Ended
	Error
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Ended:
		return "ended"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler. Unknown names decode as Idle.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "connecting":
		*s = Connecting
	case "active":
		*s = Active
	case "ended":
		*s = Ended
	case "error":
		*s = Error
	default:
		*s = Idle
	}
	return nil
}

package jsontime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Duration is a time.Duration that serializes as a duration string in JSON
// (e.g. "1m30s") and as int64 nanoseconds in msgpack. Unmarshaling JSON
// accepts either form.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		dur, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (d Duration) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt(int64(d))
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (d *Duration) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Seconds returns the number of whole seconds, rounded down.
func (d Duration) Seconds() int {
	return int(time.Duration(d) / time.Second)
}

// Clock formats d as a call timer: "MM:SS", or "H:MM:SS" past one hour.
// Negative durations render as "00:00".
func (d Duration) Clock() string {
	s := d.Seconds()
	if s < 0 {
		s = 0
	}
	h, m, sec := s/3600, (s/60)%60, s%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

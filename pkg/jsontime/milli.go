// Package jsontime provides time types that serialize as integers.
//
// Persisted CRM entities store instants as Unix milliseconds so that the
// same value reads back identically from JSON (UI, CLI output) and msgpack
// (kv storage).
package jsontime

import (
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Milli is a time.Time that serializes to/from Unix milliseconds.
type Milli time.Time

var (
	_ json.Marshaler        = Milli{}
	_ json.Unmarshaler      = (*Milli)(nil)
	_ msgpack.CustomEncoder = Milli{}
	_ msgpack.CustomDecoder = (*Milli)(nil)
)

// NowEpochMilli returns the current time as Milli.
func NowEpochMilli() Milli {
	return Milli(time.Now())
}

// FromTime truncates t to millisecond precision.
func FromTime(t time.Time) Milli {
	if t.IsZero() {
		return Milli{}
	}
	return Milli(time.UnixMilli(t.UnixMilli()))
}

// Time returns the underlying time.Time value.
func (ep Milli) Time() time.Time {
	return time.Time(ep)
}

// Before reports whether ep is before t.
func (ep Milli) Before(t Milli) bool {
	return time.Time(ep).Before(time.Time(t))
}

// After reports whether ep is after t.
func (ep Milli) After(t Milli) bool {
	return time.Time(ep).After(time.Time(t))
}

// Equal reports whether ep and t represent the same instant.
func (ep Milli) Equal(t Milli) bool {
	return time.Time(ep).Equal(time.Time(t))
}

func (ep Milli) String() string {
	return time.Time(ep).Format(time.RFC3339)
}

// IsZero reports whether ep is the zero instant.
func (ep Milli) IsZero() bool {
	return time.Time(ep).IsZero()
}

// Sub returns the duration ep-t.
func (ep Milli) Sub(t Milli) time.Duration {
	return time.Time(ep).Sub(time.Time(t))
}

// Add returns the time ep+d.
func (ep Milli) Add(d time.Duration) Milli {
	return Milli(time.Time(ep).Add(d))
}

// unixMilli returns 0 for the zero instant rather than a large negative value.
func (ep Milli) unixMilli() int64 {
	if ep.IsZero() {
		return 0
	}
	return time.Time(ep).UnixMilli()
}

func fromUnixMilli(ms int64) Milli {
	if ms == 0 {
		return Milli{}
	}
	return Milli(time.UnixMilli(ms))
}

// MarshalJSON implements json.Marshaler.
func (ep Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(ep.unixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (ep *Milli) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*ep = Milli{}
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*ep = fromUnixMilli(ms)
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (ep Milli) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt(ep.unixMilli())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (ep *Milli) DecodeMsgpack(dec *msgpack.Decoder) error {
	ms, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	*ep = fromUnixMilli(ms)
	return nil
}

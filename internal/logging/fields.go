package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Component adds a component field.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Category adds a memory category field.
func Category(category string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("category", category)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Rows adds a row count field.
func Rows(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("rows", n)
	}
}

// Count adds a generic count field.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Seconds adds a float seconds field.
func Seconds(key string, s float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Float64(key, s)
	}
}

// ErrorField adds an error field. A nil error leaves the event unchanged.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Str adds a string field with a custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

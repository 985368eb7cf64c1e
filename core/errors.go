package assistant

import (
	"errors"
	"fmt"
)

var (
	ErrDestroyed          = errors.New("engine destroyed")
	ErrNotConnected       = errors.New("engine not connected")
	ErrConversationActive = errors.New("conversation already active")
	ErrNoAudioSource      = errors.New("no audio source configured")
	ErrEmptyQuery         = errors.New("text query is empty")
)

// ConfigError names the configuration field that failed validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// ProtocolError describes a server payload that could not be understood.
// It is logged and never surfaced as an event.
type ProtocolError struct {
	Payload string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Payload, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

package events

import (
	"strings"
	"time"
)

type Kind string

// Namespace returns the part of the kind before the first dot.
func (k Kind) Namespace() string {
	namespace, _, _ := strings.Cut(string(k), ".")
	return namespace
}

// IsRequest reports whether events of this kind belong to the request
// handler rather than the conversation handler.
func (k Kind) IsRequest() bool {
	return k.Namespace() == namespaceRequest
}

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

package transport

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a stream failure. Code is the gRPC status code reported by the
// server or codes.Unknown when the failure carried no status.
type Error struct {
	Op   string
	Code codes.Code
	Err  error
}

func newError(op string, err error) *Error {
	st, _ := status.FromError(err)
	return &Error{Op: op, Code: st.Code(), Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s failed (%s): %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

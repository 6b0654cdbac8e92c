package fieldbus

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrReplyTimeout means a node did not answer a request in time.
	ErrReplyTimeout = errors.New("timed out waiting for reply")
	// ErrVersionMismatch means a node runs firmware or hardware the endpoint directory was not built for.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrPayloadTooLarge means a request does not fit in one frame.
	ErrPayloadTooLarge = errors.New("payload larger than 8 bytes")
	// ErrMalformedReply means a reply frame could not be decoded.
	ErrMalformedReply = errors.New("malformed reply")
)

// ProtocolError is a failed exchange with one node.
type ProtocolError struct {
	NodeID uint8
	Op     string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("node %d: %s: %v", e.NodeID, e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func newProtocolError(nodeID uint8, op string, err error) error {
	return &ProtocolError{NodeID: nodeID, Op: op, Err: err}
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

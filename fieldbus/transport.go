package fieldbus

import "context"

// Transport moves raw frames on and off the bus.
type Transport interface {
	Send(ctx context.Context, frame Frame) error
	// Recv blocks until a frame arrives or ctx is done.
	Recv(ctx context.Context) (Frame, error)
	// Flush drops every frame received but not yet read.
	Flush()
	Close() error
}

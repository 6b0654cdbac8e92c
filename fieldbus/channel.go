package fieldbus

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/scythe-robotics/armctl/logging"
)

// DefaultReplyTimeout bounds how long a request waits for its reply.
const DefaultReplyTimeout = 250 * time.Millisecond

// Channel owns the bus. Every request and its reply happen under one lock so a
// reply can only ever be consumed by the request that caused it.
type Channel struct {
	mu           sync.Mutex
	transport    Transport
	dir          *Directory
	replyTimeout time.Duration
	logger       logging.Logger
}

// NewChannel wraps a transport. A non-positive replyTimeout selects DefaultReplyTimeout.
func NewChannel(transport Transport, dir *Directory, replyTimeout time.Duration, logger logging.Logger) *Channel {
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	return &Channel{
		transport:    transport,
		dir:          dir,
		replyTimeout: replyTimeout,
		logger:       logger,
	}
}

// Directory returns the endpoint schema the channel encodes against.
func (c *Channel) Directory() *Directory {
	return c.dir
}

// Read returns the current value of a property endpoint.
func (c *Channel) Read(ctx context.Context, nodeID uint8, path string) (interface{}, error) {
	ep, err := c.dir.Lookup(path)
	if err != nil {
		return nil, err
	}
	if ep.IsFunction() {
		return nil, errors.Errorf("endpoint %q is a function, use Call", path)
	}
	req, err := EncodeRequest(OpRead, ep.ID, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	value, err := c.exchange(ctx, nodeID, "read "+path, ep.ID, req, true)
	if err != nil {
		return nil, err
	}
	return c.decode(nodeID, path, ep.Type, value)
}

// ReadFloat is Read converted to float64.
func (c *Channel) ReadFloat(ctx context.Context, nodeID uint8, path string) (float64, error) {
	value, err := c.Read(ctx, nodeID, path)
	if err != nil {
		return 0, err
	}
	return ToFloat64(value)
}

// Write sets a property endpoint. If the endpoint declares outputs the reply is awaited and discarded.
func (c *Channel) Write(ctx context.Context, nodeID uint8, path string, value interface{}) error {
	ep, err := c.dir.Lookup(path)
	if err != nil {
		return err
	}
	if ep.IsFunction() {
		return errors.Errorf("endpoint %q is a function, use Call", path)
	}
	encoded, err := EncodeValue(ep.Type, value)
	if err != nil {
		return errors.Wrapf(err, "cannot encode %v for %q", value, path)
	}
	req, err := EncodeRequest(OpWrite, ep.ID, encoded)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.exchange(ctx, nodeID, "write "+path, ep.ID, req, len(ep.Outputs) > 0)
	return err
}

// Call invokes a function endpoint with zero or one argument. The first output is
// returned when the endpoint declares one, otherwise nil.
func (c *Channel) Call(ctx context.Context, nodeID uint8, path string, args ...interface{}) (interface{}, error) {
	ep, err := c.dir.Lookup(path)
	if err != nil {
		return nil, err
	}
	if !ep.IsFunction() {
		return nil, errors.Errorf("endpoint %q is not a function", path)
	}
	if len(args) != len(ep.Inputs) {
		return nil, errors.Errorf("function %q takes %d arguments, got %d", path, len(ep.Inputs), len(args))
	}
	var encoded []byte
	if len(args) == 1 {
		encoded, err = EncodeValue(ep.Inputs[0].Type, args[0])
		if err != nil {
			return nil, errors.Wrapf(err, "cannot encode argument for %q", path)
		}
	}
	req, err := EncodeRequest(OpWrite, ep.ID, encoded)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	expectReply := len(ep.Outputs) > 0
	value, err := c.exchange(ctx, nodeID, "call "+path, ep.ID, req, expectReply)
	if err != nil || !expectReply {
		return nil, err
	}
	return c.decode(nodeID, path, ep.Outputs[0].Type, value)
}

func (c *Channel) decode(nodeID uint8, path string, typ PrimitiveType, value []byte) (interface{}, error) {
	decoded, err := DecodeValue(typ, value)
	if err != nil {
		return nil, newProtocolError(nodeID, "decode "+path, err)
	}
	return decoded, nil
}

// exchange sends one request and, when asked, waits for the matching reply. The
// caller holds c.mu. Frames left over from earlier exchanges are flushed first.
func (c *Channel) exchange(
	ctx context.Context, nodeID uint8, op string, endpointID uint16, req []byte, expectReply bool,
) ([]byte, error) {
	c.transport.Flush()
	if err := c.transport.Send(ctx, Frame{ID: ArbitrationID(nodeID, CmdEndpointReq), Data: req}); err != nil {
		return nil, newProtocolError(nodeID, op, err)
	}
	if !expectReply {
		return nil, nil
	}

	replyID := ArbitrationID(nodeID, CmdEndpointReply)
	frame, err := c.await(ctx, nodeID, op, func(f Frame) bool {
		if f.ID != replyID {
			return false
		}
		_, id, _, err := DecodeReply(f.Data)
		return err == nil && id == endpointID
	})
	if err != nil {
		return nil, err
	}
	_, _, value, err := DecodeReply(frame.Data)
	if err != nil {
		return nil, newProtocolError(nodeID, op, err)
	}
	return value, nil
}

// await receives until match accepts a frame or the reply timeout passes. Unmatched
// frames are dropped.
func (c *Channel) await(ctx context.Context, nodeID uint8, op string, match func(Frame) bool) (Frame, error) {
	return c.awaitFor(ctx, nodeID, op, c.replyTimeout, match)
}

func (c *Channel) awaitFor(
	ctx context.Context, nodeID uint8, op string, timeout time.Duration, match func(Frame) bool,
) (Frame, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		frame, err := c.transport.Recv(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return Frame{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return Frame{}, newProtocolError(nodeID, op, ErrReplyTimeout)
			}
			return Frame{}, newProtocolError(nodeID, op, err)
		}
		if match(frame) {
			return frame, nil
		}
		c.logger.Debugw("dropping unrelated frame", "op", op, "frame", frame.String())
	}
}

// Close closes the transport.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.Close()
}

package fieldbus

import (
	"context"
	"time"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"github.com/scythe-robotics/armctl/logging"
)

// rxBufferFrames is how many received frames are kept before the oldest is dropped.
const rxBufferFrames = 256

// SocketCAN is a Transport over a Linux SocketCAN interface such as can0.
type SocketCAN struct {
	sock    *canbus.Socket
	frames  chan Frame
	closed  *atomic.Bool
	workers *goutils.StoppableWorkers
	logger  logging.Logger
}

// NewSocketCAN binds to a CAN interface and starts receiving.
func NewSocketCAN(iface string, logger logging.Logger) (*SocketCAN, error) {
	sock, err := canbus.New()
	if err != nil {
		return nil, errors.Wrap(err, "cannot open CAN socket")
	}
	if err := sock.Bind(iface); err != nil {
		return nil, errors.Wrapf(err, "cannot bind CAN socket to %q", iface)
	}

	s := &SocketCAN{
		sock:   sock,
		frames: make(chan Frame, rxBufferFrames),
		closed: atomic.NewBool(false),
		logger: logger,
	}
	s.workers = goutils.NewBackgroundStoppableWorkers(s.receive)
	return s, nil
}

func (s *SocketCAN) receive(ctx context.Context) {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return
			}
			s.logger.Warnw("CAN receive failed", "error", err)
			if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
				return
			}
			continue
		}
		frame := Frame{ID: msg.ID, Data: msg.Data, Remote: msg.Kind == canbus.RTR}
		select {
		case s.frames <- frame:
		default:
			// Full: drop the oldest so the newest state wins.
			select {
			case <-s.frames:
			default:
			}
			s.frames <- frame
		}
	}
}

// Send writes one frame.
func (s *SocketCAN) Send(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frame.Data) > MaxPayload {
		return ErrPayloadTooLarge
	}
	kind := canbus.SFF
	if frame.Remote {
		kind = canbus.RTR
	}
	_, err := s.sock.Send(canbus.Frame{ID: frame.ID, Data: frame.Data, Kind: kind})
	return err
}

// Recv returns the next received frame.
func (s *SocketCAN) Recv(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame := <-s.frames:
		return frame, nil
	}
}

// Flush drops every buffered frame.
func (s *SocketCAN) Flush() {
	for {
		select {
		case <-s.frames:
		default:
			return
		}
	}
}

// Close closes the socket and stops the receiver.
func (s *SocketCAN) Close() error {
	s.closed.Store(true)
	err := s.sock.Close()
	s.workers.Stop()
	return err
}

// Package fake implements a simulated bus of servo nodes for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/scythe-robotics/armctl/fieldbus"
)

// Bus is an in-memory fieldbus.Transport. Nodes added to it answer version, read,
// write and function requests the way real nodes do.
type Bus struct {
	mu         sync.Mutex
	dir        *fieldbus.Directory
	nodes      map[uint8]*Node
	rx         chan fieldbus.Frame
	sent       []fieldbus.Frame
	replyDelay time.Duration
	closed     bool
	replies    sync.WaitGroup
}

// NewBus returns an empty bus using dir for endpoint types.
func NewBus(dir *fieldbus.Directory) *Bus {
	return &Bus{
		dir:   dir,
		nodes: map[uint8]*Node{},
		rx:    make(chan fieldbus.Frame, 64),
	}
}

// SetReplyDelay makes every reply arrive asynchronously after d.
func (b *Bus) SetReplyDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replyDelay = d
}

// AddNode attaches a node reporting the directory's own version.
func (b *Bus) AddNode(id uint8) *Node {
	version, err := fieldbus.ParseVersion(b.dir.FirmwareVersion, b.dir.HardwareVersion)
	if err != nil {
		panic(err)
	}
	n := &Node{
		ID:      id,
		version: version,
		dir:     b.dir,
		values:  map[uint16][]byte{},
		links:   map[uint16]uint16{},
		calls:   map[uint16]int{},
		writes:  map[uint16]int{},
	}
	b.mu.Lock()
	b.nodes[id] = n
	b.mu.Unlock()
	return n
}

// Inject queues a frame as if a node had sent it.
func (b *Bus) Inject(frame fieldbus.Frame) {
	b.rx <- frame
}

// Sent returns every frame written to the bus so far.
func (b *Bus) Sent() []fieldbus.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fieldbus.Frame(nil), b.sent...)
}

// Send handles a request frame.
func (b *Bus) Send(ctx context.Context, frame fieldbus.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frame.Data) > fieldbus.MaxPayload {
		return fieldbus.ErrPayloadTooLarge
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bus closed")
	}
	b.sent = append(b.sent, frame)
	node, ok := b.nodes[frame.NodeID()]
	delay := b.replyDelay
	b.mu.Unlock()
	if !ok {
		return nil
	}

	reply, ok := node.handle(frame)
	if !ok {
		return nil
	}
	if delay <= 0 {
		b.rx <- reply
		return nil
	}
	b.replies.Add(1)
	go func() {
		defer b.replies.Done()
		time.Sleep(delay)
		b.rx <- reply
	}()
	return nil
}

// Recv returns the next queued frame.
func (b *Bus) Recv(ctx context.Context) (fieldbus.Frame, error) {
	select {
	case <-ctx.Done():
		return fieldbus.Frame{}, ctx.Err()
	case frame := <-b.rx:
		return frame, nil
	}
}

// Flush drops queued frames.
func (b *Bus) Flush() {
	for {
		select {
		case <-b.rx:
		default:
			return
		}
	}
}

// Close waits for delayed replies and rejects further sends.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.replies.Wait()
	return nil
}

// AddSimulatedServo attaches a powered node that reaches every requested axis state and
// position at once.
func (b *Bus) AddSimulatedServo(id uint8) (*Node, error) {
	n := b.AddNode(id)
	if err := n.Set("vbus_voltage", 48.0); err != nil {
		return nil, err
	}
	if err := n.Set("axis0.controller.trajectory_done", true); err != nil {
		return nil, err
	}
	for from, to := range map[string]string{
		"axis0.requested_state":      "axis0.current_state",
		"axis0.set_abs_pos":          "axis0.pos_estimate",
		"axis0.controller.input_pos": "axis0.pos_estimate",
	} {
		if err := n.Link(from, to); err != nil {
			return nil, err
		}
	}
	return n, nil
}

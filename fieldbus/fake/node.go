package fake

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/scythe-robotics/armctl/fieldbus"
)

// Node is one simulated servo node.
type Node struct {
	ID uint8

	mu      sync.Mutex
	version fieldbus.Version
	dir     *fieldbus.Directory
	silent  bool
	values  map[uint16][]byte
	links   map[uint16]uint16
	calls   map[uint16]int
	writes  map[uint16]int
}

// SetVersion overrides the version the node reports.
func (n *Node) SetVersion(v fieldbus.Version) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.version = v
}

// SetSilent makes the node ignore every request.
func (n *Node) SetSilent(silent bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.silent = silent
}

// Set stores a property value.
func (n *Node) Set(path string, value interface{}) error {
	ep, err := n.dir.Lookup(path)
	if err != nil {
		return err
	}
	encoded, err := fieldbus.EncodeValue(ep.Type, value)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[ep.ID] = encoded
	return nil
}

// Get returns a stored property value, or the zero value of its type.
func (n *Node) Get(path string) (interface{}, error) {
	ep, err := n.dir.Lookup(path)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return fieldbus.DecodeValue(ep.Type, n.valueLocked(ep))
}

// GetFloat is Get converted to float64.
func (n *Node) GetFloat(path string) (float64, error) {
	v, err := n.Get(path)
	if err != nil {
		return 0, err
	}
	return fieldbus.ToFloat64(v)
}

// Link copies every value written to from, or passed as the argument of function
// from, into the property to. Both must share a type.
func (n *Node) Link(from, to string) error {
	fromEp, err := n.dir.Lookup(from)
	if err != nil {
		return err
	}
	toEp, err := n.dir.Lookup(to)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[fromEp.ID] = toEp.ID
	return nil
}

// Calls counts invocations of a function endpoint.
func (n *Node) Calls(path string) int {
	ep, err := n.dir.Lookup(path)
	if err != nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[ep.ID]
}

// Writes counts writes to a property endpoint.
func (n *Node) Writes(path string) int {
	ep, err := n.dir.Lookup(path)
	if err != nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writes[ep.ID]
}

func (n *Node) valueLocked(ep fieldbus.Endpoint) []byte {
	if v, ok := n.values[ep.ID]; ok {
		return v
	}
	width, err := ep.Type.Width()
	if err != nil {
		return nil
	}
	return make([]byte, width)
}

// handle answers one request frame. ok is false when there is nothing to send back.
func (n *Node) handle(frame fieldbus.Frame) (fieldbus.Frame, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.silent {
		return fieldbus.Frame{}, false
	}

	switch frame.Command() {
	case fieldbus.CmdGetVersion:
		return fieldbus.Frame{ID: fieldbus.ArbitrationID(n.ID, fieldbus.CmdGetVersion), Data: n.version.Encode()}, true
	case fieldbus.CmdEndpointReq:
		reply, err := n.handleEndpoint(frame.Data)
		if err != nil || reply == nil {
			return fieldbus.Frame{}, false
		}
		return fieldbus.Frame{ID: fieldbus.ArbitrationID(n.ID, fieldbus.CmdEndpointReply), Data: reply}, true
	default:
		return fieldbus.Frame{}, false
	}
}

func (n *Node) handleEndpoint(data []byte) ([]byte, error) {
	op, id, value, err := fieldbus.DecodeReply(data)
	if err != nil {
		return nil, err
	}
	path, ok := n.dir.PathByID(id)
	if !ok {
		return nil, errors.Errorf("unknown endpoint id %d", id)
	}
	ep, err := n.dir.Lookup(path)
	if err != nil {
		return nil, err
	}
	header := []byte{op, data[1], data[2], 0}

	if ep.IsFunction() {
		n.calls[id]++
		if target, ok := n.links[id]; ok && len(value) > 0 {
			n.values[target] = append([]byte(nil), value...)
		}
		if len(ep.Outputs) == 0 {
			return nil, nil
		}
		width, err := ep.Outputs[0].Type.Width()
		if err != nil {
			return nil, err
		}
		return append(header, make([]byte, width)...), nil
	}

	switch op {
	case fieldbus.OpRead:
		return append(header, n.valueLocked(ep)...), nil
	case fieldbus.OpWrite:
		n.writes[id]++
		n.values[id] = append([]byte(nil), value...)
		if target, ok := n.links[id]; ok {
			n.values[target] = append([]byte(nil), value...)
		}
		if len(ep.Outputs) == 0 {
			return nil, nil
		}
		return append(header, value...), nil
	default:
		return nil, errors.Errorf("unknown opcode %d", op)
	}
}

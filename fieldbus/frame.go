// Package fieldbus speaks the endpoint request/reply protocol of closed-loop servo
// nodes sharing one CAN bus.
package fieldbus

import "fmt"

// Command ids carried in the low five bits of an arbitration id.
const (
	CmdGetVersion    uint8 = 0x00
	CmdHeartbeat     uint8 = 0x01
	CmdEndpointReq   uint8 = 0x04
	CmdEndpointReply uint8 = 0x05
)

// Endpoint request opcodes.
const (
	OpRead  uint8 = 0x00
	OpWrite uint8 = 0x01
)

// MaxPayload is the data length of a classic CAN frame.
const MaxPayload = 8

const commandBits = 5

// Frame is one bus frame.
type Frame struct {
	ID     uint32
	Data   []byte
	Remote bool
}

// ArbitrationID combines a node id and a command id.
func ArbitrationID(nodeID, cmd uint8) uint32 {
	return uint32(nodeID)<<commandBits | uint32(cmd)
}

// NodeID is the node the frame is addressed to or sent from.
func (f Frame) NodeID() uint8 {
	return uint8(f.ID >> commandBits)
}

// Command is the command id of the frame.
func (f Frame) Command() uint8 {
	return uint8(f.ID & (1<<commandBits - 1))
}

func (f Frame) String() string {
	return fmt.Sprintf("node=%d cmd=0x%02x data=% x", f.NodeID(), f.Command(), f.Data)
}

package fieldbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// HeartbeatTimeout bounds AwaitHeartbeat. Nodes broadcast a heartbeat every 100ms by default.
const HeartbeatTimeout = 2 * time.Second

// Version is the identity a node reports in its get-version reply.
type Version struct {
	HardwareProductLine uint8
	HardwareVersion     uint8
	HardwareVariant     uint8
	FirmwareMajor       uint8
	FirmwareMinor       uint8
	FirmwareRevision    uint8
	FirmwareUnreleased  uint8
}

// Firmware formats the firmware version as "major.minor.revision".
func (v Version) Firmware() string {
	return fmt.Sprintf("%d.%d.%d", v.FirmwareMajor, v.FirmwareMinor, v.FirmwareRevision)
}

// Hardware formats the hardware version as "product_line.version.variant".
func (v Version) Hardware() string {
	return fmt.Sprintf("%d.%d.%d", v.HardwareProductLine, v.HardwareVersion, v.HardwareVariant)
}

// Encode lays the version out as the 8 byte get-version reply.
func (v Version) Encode() []byte {
	return []byte{
		0,
		v.HardwareProductLine, v.HardwareVersion, v.HardwareVariant,
		v.FirmwareMajor, v.FirmwareMinor, v.FirmwareRevision, v.FirmwareUnreleased,
	}
}

// DecodeVersion parses a get-version reply.
func DecodeVersion(data []byte) (Version, error) {
	if len(data) < 8 {
		return Version{}, errors.Wrapf(ErrMalformedReply, "version reply has %d bytes", len(data))
	}
	return Version{
		HardwareProductLine: data[1],
		HardwareVersion:     data[2],
		HardwareVariant:     data[3],
		FirmwareMajor:       data[4],
		FirmwareMinor:       data[5],
		FirmwareRevision:    data[6],
		FirmwareUnreleased:  data[7],
	}, nil
}

// ParseVersion builds a Version from the directory's version strings.
func ParseVersion(firmware, hardware string) (Version, error) {
	fw, err := parseTriple(firmware)
	if err != nil {
		return Version{}, errors.Wrap(err, "firmware version")
	}
	hw, err := parseTriple(hardware)
	if err != nil {
		return Version{}, errors.Wrap(err, "hardware version")
	}
	return Version{
		HardwareProductLine: hw[0], HardwareVersion: hw[1], HardwareVariant: hw[2],
		FirmwareMajor: fw[0], FirmwareMinor: fw[1], FirmwareRevision: fw[2],
	}, nil
}

func parseTriple(s string) ([3]uint8, error) {
	var out [3]uint8
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return out, errors.Errorf("%q is not of the form a.b.c", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return out, errors.Wrapf(err, "%q", s)
		}
		out[i] = uint8(n)
	}
	return out, nil
}

// CheckVersion asks a node for its version and fails with ErrVersionMismatch unless
// both firmware and hardware exactly match the directory. A mismatch must stop
// startup since endpoint ids are only valid for the firmware they came from.
func (c *Channel) CheckVersion(ctx context.Context, nodeID uint8) (Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "get version"
	c.transport.Flush()
	id := ArbitrationID(nodeID, CmdGetVersion)
	if err := c.transport.Send(ctx, Frame{ID: id, Remote: true}); err != nil {
		return Version{}, newProtocolError(nodeID, op, err)
	}
	frame, err := c.await(ctx, nodeID, op, func(f Frame) bool {
		return f.ID == id && !f.Remote
	})
	if err != nil {
		return Version{}, err
	}
	version, err := DecodeVersion(frame.Data)
	if err != nil {
		return Version{}, newProtocolError(nodeID, op, err)
	}

	if version.Firmware() != c.dir.FirmwareVersion || version.Hardware() != c.dir.HardwareVersion {
		return version, newProtocolError(nodeID, op, errors.Wrapf(ErrVersionMismatch,
			"node reports fw %s hw %s, endpoint directory is for fw %s hw %s",
			version.Firmware(), version.Hardware(), c.dir.FirmwareVersion, c.dir.HardwareVersion))
	}
	c.logger.Infow("node version verified", "node", nodeID, "fw", version.Firmware(), "hw", version.Hardware())
	return version, nil
}

// Heartbeat is the periodic status broadcast of a node.
type Heartbeat struct {
	AxisError       uint32
	AxisState       uint8
	ProcedureResult uint8
	TrajectoryDone  bool
}

// DecodeHeartbeat parses a heartbeat frame payload.
func DecodeHeartbeat(data []byte) (Heartbeat, error) {
	if len(data) < 5 {
		return Heartbeat{}, errors.Wrapf(ErrMalformedReply, "heartbeat has %d bytes", len(data))
	}
	hb := Heartbeat{
		AxisError: binary.LittleEndian.Uint32(data[0:4]),
		AxisState: data[4],
	}
	if len(data) > 5 {
		hb.ProcedureResult = data[5]
	}
	if len(data) > 6 {
		hb.TrajectoryDone = data[6] != 0
	}
	return hb, nil
}

// Encode lays the heartbeat out as a 7 byte payload.
func (hb Heartbeat) Encode() []byte {
	buf := make([]byte, 7)
	binary.LittleEndian.PutUint32(buf, hb.AxisError)
	buf[4] = hb.AxisState
	buf[5] = hb.ProcedureResult
	if hb.TrajectoryDone {
		buf[6] = 1
	}
	return buf
}

// AwaitHeartbeat waits for the next heartbeat from a node, proving it is powered and on the bus.
func (c *Channel) AwaitHeartbeat(ctx context.Context, nodeID uint8) (Heartbeat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "heartbeat"
	id := ArbitrationID(nodeID, CmdHeartbeat)
	frame, err := c.awaitFor(ctx, nodeID, op, HeartbeatTimeout, func(f Frame) bool {
		return f.ID == id
	})
	if err != nil {
		return Heartbeat{}, err
	}
	hb, err := DecodeHeartbeat(frame.Data)
	if err != nil {
		return Heartbeat{}, newProtocolError(nodeID, op, err)
	}
	return hb, nil
}

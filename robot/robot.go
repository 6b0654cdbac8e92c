// Package robot assembles an arm from its configuration and runs it against a store.
package robot

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/scythe-robotics/armctl/components/arm"
	"github.com/scythe-robotics/armctl/components/board"
	fakeboard "github.com/scythe-robotics/armctl/components/board/fake"
	"github.com/scythe-robotics/armctl/components/board/genericlinux"
	"github.com/scythe-robotics/armctl/components/motor"
	"github.com/scythe-robotics/armctl/components/motor/gpiostepper"
	"github.com/scythe-robotics/armctl/components/motor/odrive"
	// register joint drivers
	_ "github.com/scythe-robotics/armctl/components/motor/register"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/fieldbus"
	fakebus "github.com/scythe-robotics/armctl/fieldbus/fake"
	"github.com/scythe-robotics/armctl/kinematics"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/registry"
)

// Robot owns the hardware handles behind one arm.
type Robot struct {
	Arm   *arm.Arm
	Bus   *fieldbus.Channel
	Board board.Board

	logger logging.Logger
}

// New builds the board, the bus, every joint and the arm that cfg describes. On failure
// everything built so far is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *Robot, err error) {
	r := &Robot{logger: logger}
	joints := map[string]motor.Joint{}
	defer func() {
		if err == nil {
			return
		}
		for _, j := range joints {
			err = multierr.Combine(err, j.Close(context.Background()))
		}
		err = multierr.Combine(err, r.closeHardware(context.Background()))
	}()

	if r.Board, err = newBoard(cfg, logger); err != nil {
		return nil, err
	}
	if cfg.NeedsBus() {
		if r.Bus, err = NewBus(cfg, logger.Sublogger("fieldbus")); err != nil {
			return nil, err
		}
	}

	deps := registry.Dependencies{Bus: r.Bus, Board: r.Board}
	for _, jc := range cfg.Joints {
		j, err := registry.NewJoint(ctx, deps, jc, logger.Sublogger(jc.Name))
		if err != nil {
			return nil, err
		}
		joints[jc.Name] = j
	}

	model, err := kinematics.NewModel(cfg.ArmGeometry())
	if err != nil {
		return nil, err
	}
	keepOut, err := cfg.KeepOutVolumes()
	if err != nil {
		return nil, err
	}
	if r.Arm, err = arm.NewArm(model, joints, keepOut, logger.Sublogger("arm")); err != nil {
		return nil, err
	}
	return r, nil
}

func needsBoard(cfg *config.Config) bool {
	for _, j := range cfg.Joints {
		if j.Type == gpiostepper.Model {
			return true
		}
	}
	return cfg.Board.Type != ""
}

func newBoard(cfg *config.Config, logger logging.Logger) (board.Board, error) {
	if !needsBoard(cfg) {
		return nil, nil
	}
	switch cfg.Board.Type {
	case "fake":
		return fakeboard.NewBoard(), nil
	case "", "genericlinux":
		b, err := genericlinux.NewBoard(logger.Sublogger("board"))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errors.Errorf("unknown board type %q", cfg.Board.Type)
	}
}

// NewBus opens the field bus cfg describes: a simulated bus with one powered node per
// servo joint, or SocketCAN with the configured endpoint directory.
func NewBus(cfg *config.Config, logger logging.Logger) (*fieldbus.Channel, error) {
	if cfg.Bus.IsFake() {
		dir := fakebus.NewServoDirectory()
		bus := fakebus.NewBus(dir)
		for _, id := range servoNodeIDs(cfg) {
			if _, err := bus.AddSimulatedServo(id); err != nil {
				return nil, err
			}
		}
		logger.Infow("using simulated bus", "nodes", servoNodeIDs(cfg))
		return fieldbus.NewChannel(bus, dir, cfg.Bus.ReplyTimeout(), logger), nil
	}

	dir, err := fieldbus.ReadDirectory(cfg.Bus.EndpointsFile)
	if err != nil {
		return nil, err
	}
	transport, err := fieldbus.NewSocketCAN(cfg.Bus.Interface, logger)
	if err != nil {
		return nil, err
	}
	return fieldbus.NewChannel(transport, dir, cfg.Bus.ReplyTimeout(), logger), nil
}

// servoNodeIDs lists the bus node of every servo joint.
func servoNodeIDs(cfg *config.Config) []uint8 {
	var ids []uint8
	for _, j := range cfg.Joints {
		if j.Type == odrive.Model {
			ids = append(ids, uint8(j.Attributes.Int("node_id", 0)))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ServoNodeIDs lists the bus node of every servo joint in cfg.
func ServoNodeIDs(cfg *config.Config) []uint8 {
	return servoNodeIDs(cfg)
}

func (r *Robot) closeHardware(ctx context.Context) error {
	var errs error
	if r.Bus != nil {
		errs = multierr.Append(errs, r.Bus.Close())
	}
	if r.Board != nil {
		errs = multierr.Append(errs, r.Board.Close(ctx))
	}
	return errs
}

// Close releases the arm and then the bus and board.
func (r *Robot) Close(ctx context.Context) error {
	var errs error
	if r.Arm != nil {
		errs = multierr.Append(errs, r.Arm.Close(ctx))
	}
	return multierr.Combine(errs, r.closeHardware(ctx))
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Masterminds/semver/v3"
	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/golang/geo/r3"
	"github.com/invopop/jsonschema"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/scythe-robotics/armctl/components/arm"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/fieldbus"
	"github.com/scythe-robotics/armctl/kinematics"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/robot"
	"github.com/scythe-robotics/armctl/spatialmath"
	"github.com/scythe-robotics/armctl/store"
	"github.com/scythe-robotics/armctl/utils"
)

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("armctl")
	if c.Bool(debugFlag) {
		logger = logging.NewDebugLogger("armctl")
	}
	if path := c.String(logFlag); path != "" {
		// already validated by the app's Before hook
		size, _ := logMaxSizeMB(c.String(logSizeFlag))
		logger.AddAppender(logging.NewFileAppender(path, size))
	}
	return logger
}

// logMaxSizeMB parses a human readable size such as "10MB" into whole megabytes.
func logMaxSizeMB(s string) (int, error) {
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "--%s", logSizeFlag)
	}
	if size < units.MiB {
		return 0, errors.Errorf("--%s must be at least 1MB, got %q", logSizeFlag, s)
	}
	return int(size / units.MiB), nil
}

// readConfig loads the config file. It is optional unless required is set.
func readConfig(c *cli.Context, logger logging.Logger, required bool) (*config.Config, error) {
	path := c.String(configFlag)
	if path == "" {
		if required {
			return nil, errors.Errorf("--%s is required", configFlag)
		}
		return nil, nil
	}
	return config.Read(path, logger)
}

func parseFloats(args cli.Args, names ...string) ([]float64, error) {
	if args.Len() != len(names) {
		return nil, errors.Errorf("expected %d arguments (%v), got %d", len(names), names, args.Len())
	}
	out := make([]float64, 0, len(names))
	for i, name := range names {
		f, err := cast.ToFloat64E(args.Get(i))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", name)
		}
		out = append(out, f)
	}
	return out, nil
}

func parseTarget(c *cli.Context) (r3.Vector, kinematics.Orientation, error) {
	xyz, err := parseFloats(c.Args(), "x", "y", "z")
	if err != nil {
		return r3.Vector{}, kinematics.Orientation{}, err
	}
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]},
		kinematics.Orientation{Pitch: c.Float64(pitchFlag), Yaw: c.Float64(yawFlag)}, nil
}

func printf(w io.Writer, format string, a ...interface{}) {
	_, _ = fmt.Fprintf(w, format+"\n", a...)
}

func anglesTable(w io.Writer, angles kinematics.JointAngles) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Joint", "Angle (deg)"})
	for i, v := range angles.Slice() {
		t.AppendRow(table.Row{kinematics.JointNames[i], utils.Round(v, 3)})
	}
	t.Render()
}

func vectorString(v r3.Vector) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

// SolveAction prints the joint angles that put the tool at a point.
func SolveAction(c *cli.Context) error {
	logger := newLogger(c)
	target, orientation, err := parseTarget(c)
	if err != nil {
		return err
	}
	cfg, err := readConfig(c, logger, false)
	if err != nil {
		return err
	}
	geometry := kinematics.DefaultGeometry()
	var keepOut []spatialmath.Box
	if cfg != nil {
		geometry = cfg.ArmGeometry()
		if keepOut, err = cfg.KeepOutVolumes(); err != nil {
			return err
		}
	}
	model, err := kinematics.NewModel(geometry)
	if err != nil {
		return err
	}

	angles, err := model.Inverse(target, orientation, keepOut)
	if err != nil {
		printf(c.App.Writer, "%s %v", color.RedString("rejected:"), err)
		return err
	}
	anglesTable(c.App.Writer, angles)
	printf(c.App.Writer, "tool at %s", vectorString(model.Forward(angles)))
	return nil
}

// ForwardAction prints the tool position and orientation for five joint angles.
func ForwardAction(c *cli.Context) error {
	values, err := parseFloats(c.Args(), kinematics.JointNames[:]...)
	if err != nil {
		return err
	}
	angles, err := kinematics.JointAnglesFromSlice(values)
	if err != nil {
		return err
	}
	cfg, err := readConfig(c, newLogger(c), false)
	if err != nil {
		return err
	}
	geometry := kinematics.DefaultGeometry()
	if cfg != nil {
		geometry = cfg.ArmGeometry()
	}
	model, err := kinematics.NewModel(geometry)
	if err != nil {
		return err
	}

	pos, orientation := model.ForwardPose(angles)
	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"X", "Y", "Z", "Pitch", "Yaw"})
	t.AppendRow(table.Row{
		utils.Round(pos.X, 3), utils.Round(pos.Y, 3), utils.Round(pos.Z, 3),
		utils.Round(orientation.Pitch, 3), utils.Round(orientation.Yaw, 3),
	})
	t.Render()
	return nil
}

// CheckAction handshakes with every servo node and reports its versions.
func CheckAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := readConfig(c, logger, true)
	if err != nil {
		return err
	}
	var minFirmware *semver.Constraints
	if s := c.String(minFwFlag); s != "" {
		if minFirmware, err = semver.NewConstraint(s); err != nil {
			return errors.Wrapf(err, "--%s", minFwFlag)
		}
	}
	if !cfg.NeedsBus() {
		printf(c.App.Writer, "no servo joints configured")
		return nil
	}
	bus, err := robot.NewBus(cfg, logger.Sublogger("fieldbus"))
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(bus.Close)

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"Node", "Firmware", "Hardware", "Status"})
	var errs error
	for _, id := range robot.ServoNodeIDs(cfg) {
		v, err := bus.CheckVersion(c.Context, id)
		if err != nil {
			errs = multierr.Append(errs, err)
			t.AppendRow(table.Row{id, "", "", color.RedString(err.Error())})
			continue
		}
		if err := checkFirmware(v, minFirmware); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "node %d", id))
			t.AppendRow(table.Row{id, v.Firmware(), v.Hardware(), color.RedString(err.Error())})
			continue
		}
		t.AppendRow(table.Row{id, v.Firmware(), v.Hardware(), color.GreenString("ok")})
	}
	t.Render()
	return errs
}

func checkFirmware(v fieldbus.Version, constraint *semver.Constraints) error {
	if constraint == nil {
		return nil
	}
	fw, err := semver.NewVersion(v.Firmware())
	if err != nil {
		return err
	}
	if !constraint.Check(fw) {
		return errors.Errorf("firmware %s does not satisfy %s", v.Firmware(), constraint)
	}
	return nil
}

// MoveAction enables the arm, moves it and disables it again.
func MoveAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	target, orientation, err := parseTarget(c)
	if err != nil {
		return err
	}
	cfg, err := readConfig(c, logger, true)
	if err != nil {
		return err
	}
	r, err := robot.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.Arm.DisableAll(context.Background()), r.Close(context.Background()))
	}()

	if err := r.Arm.SetSpeedPercent(c.Context, c.Float64(speedFlag)); err != nil {
		return err
	}
	if err := r.Arm.EnableAll(c.Context); err != nil {
		return err
	}
	if err := r.Arm.Move(c.Context, target, orientation, true); err != nil {
		printf(c.App.Writer, "%s %v", color.RedString("move failed:"), err)
		return err
	}
	pos, err := r.Arm.Position(c.Context)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s tool at %s", color.GreenString("arrived:"), vectorString(pos))
	if c.Bool(homeFlag) {
		return r.Arm.Home(c.Context)
	}
	return nil
}

// PositionAction prints every joint's state and the tool position.
func PositionAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	cfg, err := readConfig(c, logger, true)
	if err != nil {
		return err
	}
	r, err := robot.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.Close(context.Background()))
	}()

	states, err := r.Arm.JointStates(c.Context)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"Joint", "Node", "Gear", "Commanded", "Measured", "Enabled", "Moving"})
	for _, s := range states {
		node := "-"
		if s.NodeID >= 0 {
			node = fmt.Sprint(s.NodeID)
		}
		t.AppendRow(table.Row{
			s.Name, node, s.GearRatio, utils.Round(s.CommandedAngle, 3), utils.Round(s.MeasuredAngle, 3), s.Enabled, s.Moving,
		})
	}
	t.Render()

	pos, err := r.Arm.Position(c.Context)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "tool at %s", vectorString(pos))
	return nil
}

// RunAction runs the control loop against an in-memory store. Each JSON object read
// from the app's reader is written into the store key by key.
func RunAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	cfg, err := readConfig(c, logger, true)
	if err != nil {
		return err
	}
	r, err := robot.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.Close(context.Background()))
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	if c.Bool(watchFlag) {
		watcher, err := config.NewFSWatcher(c.String(configFlag), logger)
		if err != nil {
			return err
		}
		defer goutils.UncheckedErrorFunc(watcher.Close)
		go applyKeepOutChanges(ctx, watcher, r.Arm, logger)
	}

	s := store.NewMemory()
	go feedStore(ctx, c.App.Reader, s, logger)

	loop := robot.NewLoop(r.Arm, s, cfg.RefreshInterval(), nil, logger.Sublogger("loop"))
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	state, _ := s.Get(store.KeyArmState)
	printf(c.App.Writer, "stopped with arm %v", state)
	if r.Arm.State() == arm.StateEmergencyStopped {
		printf(c.App.Writer, "%s", color.YellowString("arm was left emergency stopped"))
	}
	return nil
}

// applyKeepOutChanges installs the keep-out volumes of every changed config. Other
// changes need a restart.
func applyKeepOutChanges(ctx context.Context, w config.Watcher, a *arm.Arm, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-w.Config():
			boxes, err := cfg.KeepOutVolumes()
			if err != nil {
				logger.Warnw("ignoring keep_out change", "error", err)
				continue
			}
			a.SetKeepOutVolumes(boxes)
		}
	}
}

// SchemaAction prints the JSON schema of the config file.
func SchemaAction(c *cli.Context) error {
	schema, err := json.MarshalIndent(jsonschema.Reflect(&config.Config{}), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", schema)
	return nil
}

// feedStore decodes a stream of JSON objects into the store until the stream ends.
func feedStore(ctx context.Context, r io.Reader, s store.Store, logger logging.Logger) {
	dec := json.NewDecoder(r)
	for ctx.Err() == nil {
		var values map[string]interface{}
		if err := dec.Decode(&values); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warnw("cannot read requests", "error", err)
			}
			return
		}
		for k, v := range values {
			s.Put(k, v)
		}
	}
}

// Package config defines the arm process configuration and how it is read from disk.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/scythe-robotics/armctl/fieldbus"
	"github.com/scythe-robotics/armctl/kinematics"
	"github.com/scythe-robotics/armctl/spatialmath"
)

// DefaultRefreshRateHz is how often the control loop runs when refresh_rate_hz is unset.
const DefaultRefreshRateHz = 20

// Config describes one arm: its bus, its GPIO board, its link geometry and its joints.
type Config struct {
	Bus           BusConfig            `json:"bus"`
	Board         BoardConfig          `json:"board"`
	Geometry      *kinematics.Geometry `json:"geometry,omitempty"`
	Joints        []Joint              `json:"joints"`
	KeepOut       []string             `json:"keep_out,omitempty"`
	RefreshRateHz float64              `json:"refresh_rate_hz,omitempty"`
	Debug         bool                 `json:"debug,omitempty"`
}

// BusConfig describes the servo field bus.
type BusConfig struct {
	// Interface is the CAN network interface, e.g. can0. "fake" selects a simulated bus.
	Interface      string `json:"interface"`
	EndpointsFile  string `json:"endpoints_file,omitempty"`
	ReplyTimeoutMs int    `json:"reply_timeout_ms,omitempty"`
}

// ReplyTimeout returns the configured reply timeout or the channel default.
func (c BusConfig) ReplyTimeout() time.Duration {
	if c.ReplyTimeoutMs <= 0 {
		return fieldbus.DefaultReplyTimeout
	}
	return time.Duration(c.ReplyTimeoutMs) * time.Millisecond
}

// IsFake reports whether the simulated bus is selected.
func (c BusConfig) IsFake() bool {
	return c.Interface == "fake"
}

// BoardConfig selects the GPIO board the stepper axes are wired to.
type BoardConfig struct {
	// Type is "genericlinux" or "fake".
	Type string `json:"type"`
}

// Joint configures one joint driver.
type Joint struct {
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	Attributes AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures all parts of the joint config are valid.
func (j *Joint) Validate(path string) error {
	if j.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if j.Type == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "type")
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.needsBus() && c.Bus.Interface == "" {
		return goutils.NewConfigValidationFieldRequiredError("bus", "interface")
	}
	if c.needsBus() && !c.Bus.IsFake() && c.Bus.EndpointsFile == "" {
		return goutils.NewConfigValidationFieldRequiredError("bus", "endpoints_file")
	}
	if c.Board.Type != "" && c.Board.Type != "genericlinux" && c.Board.Type != "fake" {
		return goutils.NewConfigValidationError("board", errors.Errorf("unknown board type %q", c.Board.Type))
	}
	if c.Geometry != nil {
		if err := c.Geometry.Validate("geometry"); err != nil {
			return err
		}
	}
	if c.RefreshRateHz < 0 {
		return goutils.NewConfigValidationError("refresh_rate_hz", errors.New("must not be negative"))
	}

	seen := map[string]bool{}
	for idx := range c.Joints {
		path := fmt.Sprintf("joints.%d", idx)
		if err := c.Joints[idx].Validate(path); err != nil {
			return err
		}
		name := c.Joints[idx].Name
		if seen[name] {
			return goutils.NewConfigValidationError(path, errors.Errorf("duplicate joint %q", name))
		}
		seen[name] = true
	}
	for _, name := range kinematics.JointNames {
		if !seen[name] {
			return goutils.NewConfigValidationError("joints", errors.Errorf("missing joint %q", name))
		}
	}
	if len(c.Joints) != kinematics.NumJoints {
		return goutils.NewConfigValidationError("joints",
			errors.Errorf("expected %d joints, got %d", kinematics.NumJoints, len(c.Joints)))
	}

	if _, err := c.KeepOutVolumes(); err != nil {
		return goutils.NewConfigValidationError("keep_out", err)
	}
	return nil
}

// needsBus reports whether any joint is a servo on the field bus.
func (c *Config) needsBus() bool {
	for _, j := range c.Joints {
		if j.Type == "odrive" {
			return true
		}
	}
	return false
}

// NeedsBus reports whether any joint is a servo on the field bus.
func (c *Config) NeedsBus() bool {
	return c.needsBus()
}

// KeepOutVolumes decodes the configured keep-out boxes.
func (c *Config) KeepOutVolumes() ([]spatialmath.Box, error) {
	return spatialmath.ParseBoxes(c.KeepOut)
}

// ArmGeometry returns the configured geometry or the production arm's.
func (c *Config) ArmGeometry() kinematics.Geometry {
	if c.Geometry == nil {
		return kinematics.DefaultGeometry()
	}
	return *c.Geometry
}

// RefreshInterval is the control loop period.
func (c *Config) RefreshInterval() time.Duration {
	hz := c.RefreshRateHz
	if hz == 0 {
		hz = DefaultRefreshRateHz
	}
	return time.Duration(float64(time.Second) / hz)
}

// JointByName returns the joint config with the given name.
func (c *Config) JointByName(name string) (Joint, bool) {
	for _, j := range c.Joints {
		if j.Name == name {
			return j, true
		}
	}
	return Joint{}, false
}

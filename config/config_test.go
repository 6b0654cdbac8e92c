package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/scythe-robotics/armctl/fieldbus"
	"github.com/scythe-robotics/armctl/logging"
)

const sampleConfig = `{
	"bus": {"interface": "${ARM_CAN}", "endpoints_file": "endpoints.json", "reply_timeout_ms": 100},
	"board": {"type": "fake"},
	"joints": [
		{"name": "base", "type": "gpiostepper", "attributes": {"pins": {"step": "11", "dir": "13"}, "gear_ratio": 10}},
		{"name": "shoulder", "type": "odrive", "attributes": {"node_id": 1, "gear_ratio": 20}},
		{"name": "elbow", "type": "odrive", "attributes": {"node_id": 2, "gear_ratio": 20, "reversed": true}},
		{"name": "wrist_yaw", "type": "gpiostepper", "attributes": {"pins": {"step": "15", "dir": "16"}}},
		{"name": "wrist_pitch", "type": "gpiostepper", "attributes": {"pins": {"step": "18", "dir": "22"}}}
	],
	"keep_out": ["-100 -100 0 100 100 50"],
	"refresh_rate_hz": 50
}`

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("ARM_CAN", "can1")
	path := filepath.Join(t.TempDir(), "arm.json")
	test.That(t, os.WriteFile(path, []byte(sampleConfig), 0o600), test.ShouldBeNil)

	cfg, err := Read(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Bus.Interface, test.ShouldEqual, "can1")
	test.That(t, cfg.Bus.ReplyTimeout(), test.ShouldEqual, 100*time.Millisecond)
	test.That(t, cfg.NeedsBus(), test.ShouldBeTrue)
	test.That(t, cfg.Joints, test.ShouldHaveLength, 5)
	test.That(t, cfg.RefreshInterval(), test.ShouldEqual, 20*time.Millisecond)
	test.That(t, cfg.ArmGeometry().UpperArmLength, test.ShouldEqual, 380.0)

	boxes, err := cfg.KeepOutVolumes()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, boxes, test.ShouldHaveLength, 1)

	elbow, ok := cfg.JointByName("elbow")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, elbow.Attributes.Bool("reversed", false), test.ShouldBeTrue)
	test.That(t, elbow.Attributes.Float64("gear_ratio", 1), test.ShouldEqual, 20.0)
	test.That(t, elbow.Attributes.Int("node_id", 0), test.ShouldEqual, 2)
}

func TestValidate(t *testing.T) {
	noIface := strings.Replace(sampleConfig, `"interface": "${ARM_CAN}", `, "", 1)
	_, err := FromReader(strings.NewReader(noIface))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "interface")

	fixed := strings.Replace(sampleConfig, "${ARM_CAN}", "fake", 1)
	cfg, err := FromReader(strings.NewReader(fixed))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Bus.IsFake(), test.ShouldBeTrue)

	missing := strings.Replace(fixed, `"name": "wrist_pitch"`, `"name": "wrist_roll"`, 1)
	_, err = FromReader(strings.NewReader(missing))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "wrist_pitch")

	dup := strings.Replace(fixed, `"name": "wrist_pitch"`, `"name": "base"`, 1)
	_, err = FromReader(strings.NewReader(dup))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate")

	badBox := strings.Replace(fixed, `"-100 -100 0 100 100 50"`, `"1 2 3"`, 1)
	_, err = FromReader(strings.NewReader(badBox))
	test.That(t, err, test.ShouldNotBeNil)

	unknown := strings.Replace(fixed, `"refresh_rate_hz"`, `"refresh_hz"`, 1)
	_, err = FromReader(strings.NewReader(unknown))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDefaults(t *testing.T) {
	var cfg Config
	test.That(t, cfg.Bus.ReplyTimeout(), test.ShouldEqual, fieldbus.DefaultReplyTimeout)
	test.That(t, cfg.RefreshInterval(), test.ShouldEqual, 50*time.Millisecond)
}

type pins struct {
	Step string `json:"step"`
	Dir  string `json:"dir"`
}

type driverConfig struct {
	Pins      pins    `json:"pins"`
	GearRatio float64 `json:"gear_ratio"`
	NodeID    int     `json:"node_id"`
}

func TestTransformAttributeMap(t *testing.T) {
	conf, err := TransformAttributeMap[*driverConfig](AttributeMap{
		"pins":       map[string]interface{}{"step": "11", "dir": "13"},
		"gear_ratio": "12.5",
		"node_id":    float64(3),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Pins.Step, test.ShouldEqual, "11")
	test.That(t, conf.GearRatio, test.ShouldEqual, 12.5)
	test.That(t, conf.NodeID, test.ShouldEqual, 3)

	_, err = TransformAttributeMap[*driverConfig](AttributeMap{"gear": 2})
	test.That(t, err, test.ShouldNotBeNil)

	byValue, err := TransformAttributeMap[driverConfig](AttributeMap{"node_id": 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, byValue.NodeID, test.ShouldEqual, 4)
}

package gpiostepper

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/scythe-robotics/armctl/components/board/fake"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/registry"
)

func noSleep(time.Duration) {}

func validConfig(t *testing.T) Config {
	t.Helper()
	mc := Config{
		Pins:          PinConfig{Step: "11", Direction: "13", EnablePinLow: "15"},
		Microstepping: 8,
		MaxSpeed:      720,
		Acceleration:  2880,
	}
	test.That(t, mc.Validate("joints.base"), test.ShouldBeNil)
	return mc
}

func pin(t *testing.T, b *fake.Board, name string) *fake.GPIOPin {
	t.Helper()
	p, err := b.Pin(name)
	test.That(t, err, test.ShouldBeNil)
	return p
}

func TestValidate(t *testing.T) {
	mc := Config{}
	err := mc.Validate("joints.base")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pins.step")

	mc = Config{Pins: PinConfig{Step: "1", Direction: "2"}}
	test.That(t, mc.Validate("joints.base"), test.ShouldBeNil)
	test.That(t, mc.GearRatio, test.ShouldEqual, 1.0)
	test.That(t, mc.Microstepping, test.ShouldEqual, 1)
	test.That(t, mc.DegreesPerStep, test.ShouldEqual, 1.8)
	test.That(t, mc.TickMs, test.ShouldEqual, 10)

	mc = Config{Pins: PinConfig{Step: "1", Direction: "2", Microstep1: "3"}, Microstepping: 16}
	test.That(t, mc.Validate("joints.base"), test.ShouldNotBeNil)

	mc = Config{Pins: PinConfig{Step: "1", Direction: "2", Microstep1: "3", Microstep2: "4"}, Microstepping: 4}
	test.That(t, mc.Validate("joints.base"), test.ShouldNotBeNil)

	mc = Config{Pins: PinConfig{Step: "1", Direction: "2"}, StartingSpeed: 1000}
	test.That(t, mc.Validate("joints.base"), test.ShouldNotBeNil)
}

func TestMoves(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b := fake.NewBoard()
	m, err := newGPIOStepper(ctx, b, validConfig(t), "base", logger, noSleep)
	test.That(t, err, test.ShouldBeNil)
	defer m.Close(ctx)

	step := pin(t, b, "11")
	dir := pin(t, b, "13")
	en := pin(t, b, "15")
	test.That(t, en.High(), test.ShouldBeTrue)

	test.That(t, m.Enable(ctx), test.ShouldBeNil)
	test.That(t, en.High(), test.ShouldBeFalse)

	// 1.8/8 degrees per microstep
	test.That(t, m.GoToAngle(ctx, 90, 1), test.ShouldBeNil)
	test.That(t, m.WaitForMove(ctx), test.ShouldBeNil)
	test.That(t, step.RisingEdges(), test.ShouldEqual, 400)
	test.That(t, dir.High(), test.ShouldBeTrue)
	angle, err := m.Angle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldAlmostEqual, 90)
	test.That(t, m.CommandedAngle(), test.ShouldEqual, 90.0)
	moving, err := m.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)

	test.That(t, m.GoToAngle(ctx, -45, 0.5), test.ShouldBeNil)
	test.That(t, m.WaitForMove(ctx), test.ShouldBeNil)
	test.That(t, step.RisingEdges(), test.ShouldEqual, 1000)
	test.That(t, dir.High(), test.ShouldBeFalse)
	angle, err = m.Angle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldAlmostEqual, -45)

	// already there
	test.That(t, m.GoToAngle(ctx, -45, 1), test.ShouldBeNil)
	test.That(t, m.WaitForMove(ctx), test.ShouldBeNil)
	test.That(t, step.RisingEdges(), test.ShouldEqual, 1000)

	test.That(t, m.GoToAngle(ctx, 10, 0), test.ShouldNotBeNil)
	test.That(t, m.SetSpeedScale(ctx, 2), test.ShouldNotBeNil)

	state, err := m.State(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state.Name, test.ShouldEqual, "base")
	test.That(t, state.Enabled, test.ShouldBeTrue)
	test.That(t, state.MeasuredAngle, test.ShouldAlmostEqual, -45)
}

func TestDisabledKeepsBookkeeping(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b := fake.NewBoard()
	mc := validConfig(t)
	mc.GearRatio = 2
	mc.Reversed = true
	m, err := newGPIOStepper(ctx, b, mc, "wrist_yaw", logger, noSleep)
	test.That(t, err, test.ShouldBeNil)
	defer m.Close(ctx)

	test.That(t, m.GoToAngle(ctx, 45, 1), test.ShouldBeNil)
	test.That(t, m.WaitForMove(ctx), test.ShouldBeNil)
	test.That(t, pin(t, b, "11").RisingEdges(), test.ShouldEqual, 400)
	test.That(t, pin(t, b, "13").High(), test.ShouldBeFalse)
	angle, err := m.Angle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldAlmostEqual, 45)

	test.That(t, m.Enable(ctx), test.ShouldBeNil)
	test.That(t, m.GoToAngle(ctx, 0, 1), test.ShouldBeNil)
	test.That(t, m.WaitForMove(ctx), test.ShouldBeNil)
	test.That(t, pin(t, b, "11").RisingEdges(), test.ShouldEqual, 800)
	angle, err = m.Angle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldAlmostEqual, 0)
}

func TestStop(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b := fake.NewBoard()
	mc := Config{Pins: PinConfig{Step: "11", Direction: "13"}}
	test.That(t, mc.Validate("joints.elbow"), test.ShouldBeNil)
	m, err := newGPIOStepper(ctx, b, mc, "elbow", logger, time.Sleep)
	test.That(t, err, test.ShouldBeNil)
	defer m.Close(ctx)
	test.That(t, m.Enable(ctx), test.ShouldBeNil)

	// 2000 full steps at no more than 200 steps/s
	test.That(t, m.GoToAngle(ctx, 3600, 1), test.ShouldBeNil)
	for pin(t, b, "11").RisingEdges() < 5 {
		time.Sleep(time.Millisecond)
	}
	moving, err := m.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeTrue)

	test.That(t, m.Stop(ctx), test.ShouldBeNil)
	moving, err = m.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)

	edges := pin(t, b, "11").RisingEdges()
	test.That(t, edges, test.ShouldBeLessThan, 2000)
	angle, err := m.Angle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldAlmostEqual, float64(edges)*1.8)
	test.That(t, m.CommandedAngle(), test.ShouldAlmostEqual, angle)
	test.That(t, m.WaitForMove(ctx), test.ShouldBeNil)
}

func TestStepFailure(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b := fake.NewBoard()
	m, err := newGPIOStepper(ctx, b, validConfig(t), "base", logger, noSleep)
	test.That(t, err, test.ShouldBeNil)
	defer m.Close(ctx)

	pin(t, b, "11").FailWith(errors.New("line busy"))
	test.That(t, m.GoToAngle(ctx, 10, 1), test.ShouldBeNil)
	err = m.WaitForMove(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line busy")
}

func TestMicrostepPins(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b := fake.NewBoard()
	mc := Config{
		Pins:          PinConfig{Step: "11", Direction: "13", Microstep1: "16", Microstep2: "18"},
		Microstepping: 32,
	}
	test.That(t, mc.Validate("joints.shoulder"), test.ShouldBeNil)
	_, err := newGPIOStepper(ctx, b, mc, "shoulder", logger, noSleep)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pin(t, b, "16").High(), test.ShouldBeTrue)
	test.That(t, pin(t, b, "18").High(), test.ShouldBeFalse)
}

func TestRegistered(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	conf := config.Joint{
		Name: "base",
		Type: Model,
		Attributes: config.AttributeMap{
			"pins":          map[string]interface{}{"step": "11", "dir": "13"},
			"gear_ratio":    10.0,
			"microstepping": 16.0,
		},
	}
	_, err := registry.NewJoint(ctx, registry.Dependencies{}, conf, logger)
	test.That(t, err, test.ShouldNotBeNil)

	j, err := registry.NewJoint(ctx, registry.Dependencies{Board: fake.NewBoard()}, conf, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, j.Name(), test.ShouldEqual, "base")
	test.That(t, j.Close(ctx), test.ShouldBeNil)
}

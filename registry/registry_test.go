package registry

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/scythe-robotics/armctl/components/motor"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/logging"
)

func TestRegistry(t *testing.T) {
	logger := logging.NewTestLogger(t)
	jf := func(ctx context.Context, deps Dependencies, conf config.Joint, logger logging.Logger) (motor.Joint, error) {
		return nil, nil
	}

	test.That(t, func() { RegisterJoint("x", nil) }, test.ShouldPanic)

	RegisterJoint("test-joint", jf)
	test.That(t, func() { RegisterJoint("test-joint", jf) }, test.ShouldPanic)
	test.That(t, JointLookup("test-joint"), test.ShouldNotBeNil)
	test.That(t, JointLookup("z"), test.ShouldBeNil)
	test.That(t, RegisteredJointModels(), test.ShouldContain, "test-joint")

	_, err := NewJoint(context.Background(), Dependencies{}, config.Joint{Name: "base", Type: "z"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown joint model")

	j, err := NewJoint(context.Background(), Dependencies{}, config.Joint{Name: "base", Type: "test-joint"}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, j, test.ShouldBeNil)
}

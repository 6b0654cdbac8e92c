// Package registry operates the global registry of joint drivers.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/scythe-robotics/armctl/components/board"
	"github.com/scythe-robotics/armctl/components/motor"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/fieldbus"
	"github.com/scythe-robotics/armctl/logging"
)

// Dependencies are the shared hardware handles a joint driver may need.
type Dependencies struct {
	Bus   *fieldbus.Channel
	Board board.Board
}

// A CreateJoint creates a joint from a given config.
type CreateJoint func(ctx context.Context, deps Dependencies, conf config.Joint, logger logging.Logger) (motor.Joint, error)

var (
	mu            sync.RWMutex
	jointRegistry = map[string]CreateJoint{}
)

// RegisterJoint registers a joint model to a creator.
func RegisterJoint(model string, creator CreateJoint) {
	mu.Lock()
	defer mu.Unlock()
	_, old := jointRegistry[model]
	if old {
		panic(errors.Errorf("trying to register two joints with same model %s", model))
	}
	if creator == nil {
		panic(errors.Errorf("cannot register a nil creator for joint model %s", model))
	}
	jointRegistry[model] = creator
}

// JointLookup looks up a joint creator by the given model. nil is returned if
// there is no creator registered.
func JointLookup(model string) CreateJoint {
	mu.RLock()
	defer mu.RUnlock()
	return jointRegistry[model]
}

// RegisteredJointModels returns the sorted names of every registered model.
func RegisteredJointModels() []string {
	mu.RLock()
	defer mu.RUnlock()
	models := make([]string, 0, len(jointRegistry))
	for m := range jointRegistry {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// NewJoint creates the joint a config entry describes.
func NewJoint(ctx context.Context, deps Dependencies, conf config.Joint, logger logging.Logger) (motor.Joint, error) {
	creator := JointLookup(conf.Type)
	if creator == nil {
		return nil, errors.Errorf("unknown joint model %q for joint %q", conf.Type, conf.Name)
	}
	j, err := creator(ctx, deps, conf, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create joint %q", conf.Name)
	}
	return j, nil
}

// Package store holds the shared key/value table the arm loop reads setpoints from and
// publishes telemetry to.
package store

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	armutils "github.com/scythe-robotics/armctl/utils"
)

// Keys written by the operator.
const (
	KeySetup           = "setup"
	KeyRestrictedAreas = "restricted_areas"
	KeyShutdown        = "shutdown"
	KeyEmergencyStop   = "emergency_stop"
	KeyEnableMotors    = "enable_motors"
	KeyRequestMove     = "request_move"
	KeyTargetPosition  = "target_position"
	KeyTargetRotations = "target_rotations"
	KeyPercentageSpeed = "percentage_speed"
)

// Keys written by the arm.
const (
	KeyMoving            = "moving"
	KeyCurrentPosition   = "current_position"
	KeyServerRefreshRate = "server_refresh_rate"
	KeyServerHeartbeat   = "server_heartbeat"
	KeyArmState          = "arm_state"
	KeyLastError         = "last_error"
)

// Store is a table of named values.
type Store interface {
	Get(key string) (interface{}, bool)
	Put(key string, value interface{})
	Keys() []string
}

// Memory is a Store kept in process memory.
type Memory struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]interface{}{}}
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Put stores value under key, replacing what was there.
func (m *Memory) Put(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Keys returns every key in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies every value.
func (m *Memory) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Bool reads key as a boolean, returning def when it is missing or not a boolean.
func Bool(s Store, key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Number reads key as a float, returning def when it is missing or not a number.
func Number(s Store, key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// Floats reads key as a list of numbers. A missing key returns nil and no error.
func Floats(s Store, key string) ([]float64, error) {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []float64:
		return append([]float64(nil), list...), nil
	case []int:
		out := make([]float64, 0, len(list))
		for _, i := range list {
			out = append(out, float64(i))
		}
		return out, nil
	case []interface{}:
		out := make([]float64, 0, len(list))
		for i, item := range list {
			f, err := cast.ToFloat64E(item)
			if err != nil {
				return nil, errors.Wrapf(err, "%s[%d]", key, i)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, errors.Wrap(armutils.NewUnexpectedTypeError([]float64{}, v), key)
	}
}

// Strings reads key as a list of strings. A missing key returns nil and no error.
func Strings(s Store, key string) ([]string, error) {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, errors.Wrap(err, key)
	}
	return out, nil
}

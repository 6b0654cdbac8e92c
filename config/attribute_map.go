package config

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// AttributeMap is a free-form set of driver attributes as it appears in the config file.
type AttributeMap map[string]interface{}

// Has reports whether name is set.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String returns the attribute as a string, or "" if it is missing or not convertible.
func (am AttributeMap) String(name string) string {
	return cast.ToString(am[name])
}

// Float64 returns the attribute as a float64, or def if it is missing or not convertible.
func (am AttributeMap) Float64(name string, def float64) float64 {
	if !am.Has(name) {
		return def
	}
	f, err := cast.ToFloat64E(am[name])
	if err != nil {
		return def
	}
	return f
}

// Int returns the attribute as an int, or def if it is missing or not convertible.
func (am AttributeMap) Int(name string, def int) int {
	if !am.Has(name) {
		return def
	}
	i, err := cast.ToIntE(am[name])
	if err != nil {
		return def
	}
	return i
}

// Bool returns the attribute as a bool, or def if it is missing or not convertible.
func (am AttributeMap) Bool(name string, def bool) bool {
	if !am.Has(name) {
		return def
	}
	b, err := cast.ToBoolE(am[name])
	if err != nil {
		return def
	}
	return b
}

// TransformAttributeMap decodes attributes into a driver's typed config using its json tags.
// Numbers written as strings in the config file are accepted.
func TransformAttributeMap[T any](attributes AttributeMap) (T, error) {
	var out T

	var forResult interface{}

	toT := reflect.TypeOf(out)
	if toT == nil {
		// nothing to transform
		return out, nil
	}
	if toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           forResult,
		Metadata:         &md,
		WeaklyTypedInput: true,
		Squash:           true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	if len(md.Unused) != 0 {
		return out, errors.Errorf("unknown attributes %v", md.Unused)
	}
	return out, nil
}

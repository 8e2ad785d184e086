// Package configbinder binds untyped configuration sections to typed structs.
package configbinder

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// BindProperties binds a map of properties to a target struct using mapstructure.
// It uses the "yaml" tag for binding and allows weakly typed input (e.g., string to int
// conversion), so values coming from environment variables bind like YAML values.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindSection binds the named entry of a connection map (e.g. the "database" section) to target.
func BindSection(section map[string]interface{}, name string, target interface{}) error {
	raw, ok := section[name]
	if !ok {
		return fmt.Errorf("configuration entry '%s' not found", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("configuration entry '%s' is %T, expected a mapping", name, raw)
	}
	return BindProperties(props, target)
}

// StringToTimeHookFunc converts strings in layout to time.Time. Empty strings decode to the
// zero time.
func StringToTimeHookFunc(layout string) mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
			return data, nil
		}
		s := data.(string)
		if s == "" {
			return time.Time{}, nil
		}
		return time.Parse(layout, s)
	}
}

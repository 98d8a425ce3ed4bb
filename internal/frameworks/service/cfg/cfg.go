// Package cfg decodes raw config maps into typed structs.
package cfg

import (
	"fmt"
	"slices"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by config structs that fill in their own defaults
// after decoding.
type Setter interface {
	ApplyDefaults()
}

func decode(input map[string]any, c any, md *mapstructure.Metadata) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: md,
		Result:   c,
		TagName:  "mapstructure",
		// Durations may be written as "250ms" in TOML.
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return err
	}
	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}
	return nil
}

// Decode decodes input into the struct pointed to by c.
// ApplyDefaults runs afterwards when c implements Setter.
func Decode(input map[string]any, c any) error {
	return decode(input, c, nil)
}

// DecodeWithUnused is Decode that also returns the keys of input that
// matched no field, sorted.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	if err := decode(input, c, &md); err != nil {
		return nil, err
	}
	unused := slices.Clone(md.Unused)
	slices.Sort(unused)
	return unused, nil
}

// DecodeStrict is Decode that fails when any key of input is unused.
func DecodeStrict(input map[string]any, c any) error {
	unused, err := DecodeWithUnused(input, c)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unused config keys: %v", unused)
	}
	return nil
}

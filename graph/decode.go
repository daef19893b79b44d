package graph

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode copies a state into a struct. Fields are matched by their `json`
// tag, falling back to the field name. Numbers and slices restored from a
// JSON checkpoint (float64, []any) are converted to the struct's types.
func Decode(state State, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create state decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(state)); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	return nil
}

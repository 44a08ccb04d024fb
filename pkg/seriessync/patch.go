package seriessync

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Patch changes some fields of a channel state. Fields a patch does not
// touch keep their value.
type Patch func(*State)

// ActiveIndex sets the active index.
func ActiveIndex(i int) Patch {
	return func(s *State) {
		s.ActiveIndex = &i
	}
}

// NoActiveIndex clears the active index.
func NoActiveIndex() Patch {
	return func(s *State) {
		s.ActiveIndex = nil
	}
}

// ActivePayload sets the active payload. A nil v clears it.
func ActivePayload(v any) Patch {
	return func(s *State) {
		s.ActivePayload = v
	}
}

// ActiveLabel sets the active label.
func ActiveLabel(label string) Patch {
	return func(s *State) {
		s.ActiveLabel = &label
	}
}

// NoActiveLabel clears the active label.
func NoActiveLabel() Patch {
	return func(s *State) {
		s.ActiveLabel = nil
	}
}

// Hovering sets the hovering flag.
func Hovering(b bool) Patch {
	return func(s *State) {
		s.IsHovering = b
	}
}

// Full replaces every field with the fields of st.
func Full(st State) Patch {
	return func(s *State) {
		*s = st.clone()
	}
}

// ParsePatch decodes a JSON object into patches. Keys present in the object
// are applied, including explicit nulls; absent keys are left untouched.
// Unknown keys are rejected.
func ParsePatch(data []byte) ([]Patch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("series patch: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("series patch: expected a JSON object")
	}

	patches := make([]Patch, 0, len(fields))
	for name, raw := range fields {
		isNull := bytes.Equal(bytes.TrimSpace(raw), []byte("null"))

		switch name {
		case "activeIndex":
			if isNull {
				patches = append(patches, NoActiveIndex())
				continue
			}
			var i int
			if err := json.Unmarshal(raw, &i); err != nil {
				return nil, fmt.Errorf("series patch: activeIndex: %w", err)
			}
			patches = append(patches, ActiveIndex(i))

		case "activePayload":
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("series patch: activePayload: %w", err)
			}
			patches = append(patches, ActivePayload(v))

		case "activeLabel":
			if isNull {
				patches = append(patches, NoActiveLabel())
				continue
			}
			var label string
			if err := json.Unmarshal(raw, &label); err != nil {
				return nil, fmt.Errorf("series patch: activeLabel: %w", err)
			}
			patches = append(patches, ActiveLabel(label))

		case "isHovering":
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, fmt.Errorf("series patch: isHovering: %w", err)
			}
			patches = append(patches, Hovering(b))

		default:
			return nil, fmt.Errorf("series patch: unknown field %q", name)
		}
	}
	return patches, nil
}

package highlight

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// labelLayouts are the textual timestamp layouts ParseLabel accepts, tried
// in order.
var labelLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Label is a chart axis label carrying the instant it names.
// The zero Label means "no label".
type Label struct {
	raw string
	at  time.Time
}

// ParseLabel parses a timestamp label. It accepts RFC 3339, the same
// layouts with a space separator or without a zone (read as UTC), bare dates,
// and integer unix epochs in seconds (up to 11 digits) or milliseconds.
func ParseLabel(s string) (Label, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Label{}, fmt.Errorf("highlight: empty label")
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		digits := len(strings.TrimPrefix(raw, "-"))
		if digits <= 11 {
			return Label{raw: raw, at: time.Unix(n, 0).UTC()}, nil
		}
		return Label{raw: raw, at: time.UnixMilli(n).UTC()}, nil
	}

	for _, layout := range labelLayouts {
		if at, err := time.Parse(layout, raw); err == nil {
			return Label{raw: raw, at: at}, nil
		}
	}
	return Label{}, fmt.Errorf("highlight: label %q is not a timestamp", s)
}

// MustParseLabel is like ParseLabel but panics on error.
func MustParseLabel(s string) Label {
	l, err := ParseLabel(s)
	if err != nil {
		panic(err)
	}
	return l
}

// LabelAt builds a label for t, rendered as RFC 3339.
func LabelAt(t time.Time) Label {
	return Label{raw: t.Format(time.RFC3339Nano), at: t}
}

// IsZero reports whether l is the absent label.
func (l Label) IsZero() bool {
	return l.raw == ""
}

// String returns the label text as it was received.
func (l Label) String() string {
	return l.raw
}

// Time returns the instant the label names.
func (l Label) Time() time.Time {
	return l.at
}

// Before reports whether l names an instant strictly earlier than o.
func (l Label) Before(o Label) bool {
	return l.at.Before(o.at)
}

// Equal reports whether l and o name the same instant.
func (l Label) Equal(o Label) bool {
	return l.at.Equal(o.at)
}

// MarshalJSON renders the label text, or null for the zero label.
func (l Label) MarshalJSON() ([]byte, error) {
	if l.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(l.raw)
}

// UnmarshalJSON parses a JSON string label. null yields the zero label.
func (l *Label) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Label{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if numErr := json.Unmarshal(data, &n); numErr != nil {
			return fmt.Errorf("highlight: label: %w", err)
		}
		s = n.String()
	}
	if s == "" {
		*l = Label{}
		return nil
	}

	parsed, err := ParseLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

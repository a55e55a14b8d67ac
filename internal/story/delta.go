package story

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownField is returned when a delta carries a top-level field
// the merge does not know how to apply.
var ErrUnknownField = errors.New("unknown delta field")

// TrackerDelta is the structured change set produced by narrative analysis
// of one chapter. Object-valued fields keep the order the model wrote them
// in, because thread updates are appended in that order.
type TrackerDelta struct {
	CharacterDevelopments []CharacterDevelopment `json:"character_developments"`
	PlotThreadStatus      []ThreadUpdate         `json:"plot_thread_status"`
	NewTensions           []string               `json:"new_tensions"`
	// ThematicProgression is collected for callers but never merged.
	ThematicProgression map[string]any `json:"thematic_progression"`
}

// CharacterDevelopment is one character's arc snapshot for the chapter.
type CharacterDevelopment struct {
	Name     string
	Snapshot ArcSnapshot
}

// ThreadUpdate is a status report for a plot thread named by its text.
type ThreadUpdate struct {
	Thread string
	Status string
}

// ThreadLabel is the replacement entry written into the active thread list.
func (u ThreadUpdate) ThreadLabel() string {
	return fmt.Sprintf("%s - %s", u.Thread, u.Status)
}

// ParseTrackerDelta decodes a delta object. Unknown top-level fields,
// non-object input and mistyped values are all rejected.
func ParseTrackerDelta(data []byte) (TrackerDelta, error) {
	var d TrackerDelta
	if err := json.Unmarshal(data, &d); err != nil {
		return TrackerDelta{}, err
	}
	return d, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TrackerDelta) UnmarshalJSON(data []byte) error {
	fields, err := decodeOrderedObject(data)
	if err != nil {
		return err
	}
	var out TrackerDelta
	for _, f := range fields {
		switch f.key {
		case "character_developments":
			devs, err := decodeOrderedObject(f.value)
			if err != nil {
				return fmt.Errorf("character_developments: %w", err)
			}
			for _, dev := range devs {
				var snap ArcSnapshot
				if err := json.Unmarshal(dev.value, &snap); err != nil {
					return fmt.Errorf("character_developments.%s: %w", dev.key, err)
				}
				out.CharacterDevelopments = append(out.CharacterDevelopments, CharacterDevelopment{Name: dev.key, Snapshot: snap})
			}
		case "plot_thread_status":
			threads, err := decodeOrderedObject(f.value)
			if err != nil {
				return fmt.Errorf("plot_thread_status: %w", err)
			}
			for _, th := range threads {
				var status string
				if err := json.Unmarshal(th.value, &status); err != nil {
					return fmt.Errorf("plot_thread_status.%s: %w", th.key, err)
				}
				out.PlotThreadStatus = append(out.PlotThreadStatus, ThreadUpdate{Thread: th.key, Status: status})
			}
		case "new_tensions":
			if err := json.Unmarshal(f.value, &out.NewTensions); err != nil {
				return fmt.Errorf("new_tensions: %w", err)
			}
		case "thematic_progression":
			if err := json.Unmarshal(f.value, &out.ThematicProgression); err != nil {
				return fmt.Errorf("thematic_progression: %w", err)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, f.key)
		}
	}
	*d = out
	return nil
}

// MarshalJSON writes the delta back in its wire shape, preserving order.
func (d TrackerDelta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"character_developments":{`)
	for i, dev := range d.CharacterDevelopments {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writePair(&buf, dev.Name, dev.Snapshot); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},"plot_thread_status":{`)
	for i, th := range d.PlotThreadStatus {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writePair(&buf, th.Thread, th.Status); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},"new_tensions":`)
	tensions := d.NewTensions
	if tensions == nil {
		tensions = []string{}
	}
	if err := writeValue(&buf, tensions); err != nil {
		return nil, err
	}
	buf.WriteString(`,"thematic_progression":`)
	themes := d.ThematicProgression
	if themes == nil {
		themes = map[string]any{}
	}
	if err := writeValue(&buf, themes); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Apply merges a delta into a copy of the context and returns the copy.
//
// Characters get the snapshot appended to their history, created if unseen.
// A thread whose exact text is present is removed, then "<thread> - <status>"
// is appended. New tensions are appended without deduplication.
func (c *Context) Apply(d TrackerDelta) *Context {
	out := c.Clone()
	if out == nil {
		out = Empty()
	}
	if out.CharacterArcs == nil {
		out.CharacterArcs = map[string][]ArcSnapshot{}
	}
	for _, dev := range d.CharacterDevelopments {
		if _, ok := out.CharacterArcs[dev.Name]; !ok {
			out.CharacterArcs[dev.Name] = []ArcSnapshot{}
		}
		out.CharacterArcs[dev.Name] = append(out.CharacterArcs[dev.Name], dev.Snapshot)
	}
	for _, th := range d.PlotThreadStatus {
		out.ActivePlotThreads = removeFirst(out.ActivePlotThreads, th.Thread)
		out.ActivePlotThreads = append(out.ActivePlotThreads, th.ThreadLabel())
	}
	out.UnresolvedTensions = append(out.UnresolvedTensions, d.NewTensions...)
	return out
}

func removeFirst(items []string, target string) []string {
	for i, item := range items {
		if item == target {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}

type objectField struct {
	key   string
	value json.RawMessage
}

// decodeOrderedObject splits a JSON object into its members in source
// order. A repeated key keeps its first position and its last value.
func decodeOrderedObject(data []byte) ([]objectField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}
	var fields []objectField
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		if i, seen := index[key]; seen {
			fields[i].value = raw
			continue
		}
		index[key] = len(fields)
		fields = append(fields, objectField{key: key, value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return fields, nil
}

func writePair(buf *bytes.Buffer, key string, value any) error {
	if err := writeValue(buf, key); err != nil {
		return err
	}
	buf.WriteByte(':')
	return writeValue(buf, value)
}

func writeValue(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

package subscription

import (
	"fmt"
	"strings"
)

// placeholder names recognized in a topic format template.
const (
	phInterface    = "interface"
	phMajorVersion = "majorVersion"
	phManufacturer = "manufacturer"
	phSerialNumber = "serialNumber"
	phTopic        = "topic"
)

var knownPlaceholders = map[string]bool{
	phInterface:    true,
	phMajorVersion: true,
	phManufacturer: true,
	phSerialNumber: true,
	phTopic:        true,
}

// segment is one '/'-delimited level of a compiled Format: either a fixed
// literal or a named placeholder.
type segment struct {
	literal     string
	placeholder string // "" if literal
}

// Format is a compiled topic template, e.g.
// "{interface}/v{majorVersion}/{manufacturer}/{serialNumber}/{topic}".
// Construction and parsing are precompiled once at initialization (spec
// §4.1) so every Build/Parse call is a simple slice walk.
type Format struct {
	segments []segment
	index    map[string]int // placeholder name -> segment index
}

// DefaultTemplate is the VDA 5050 default topic format (spec §6).
const DefaultTemplate = "{interface}/v{majorVersion}/{manufacturer}/{serialNumber}/{topic}"

// Compile parses a template string into a Format, verifying that each
// known placeholder ends its path level and appears at most once. A
// placeholder may follow a literal prefix within its level (as in
// "v{majorVersion}"), so it does not have to fill the whole level.
func Compile(template string) (*Format, error) {
	levels := strings.Split(template, "/")
	if len(levels) == 0 {
		return nil, fmt.Errorf("subscription: empty topic format template")
	}

	f := &Format{index: make(map[string]int)}
	for i, level := range levels {
		if strings.HasPrefix(level, "{") {
			// A level may embed a literal prefix before the placeholder,
			// e.g. "v{majorVersion}" -- but the placeholder itself must
			// still occupy the remainder of the level and appear once.
		}
		name, literalPrefix, ok := extractPlaceholder(level)
		if !ok {
			f.segments = append(f.segments, segment{literal: level})
			continue
		}
		if !knownPlaceholders[name] {
			return nil, fmt.Errorf("subscription: unknown placeholder %q in template", name)
		}
		if !strings.HasSuffix(level, "}") {
			return nil, fmt.Errorf("subscription: placeholder %q must end its level %q", name, level)
		}
		if _, dup := f.index[name]; dup {
			return nil, fmt.Errorf("subscription: placeholder %q appears more than once", name)
		}
		f.index[name] = i
		f.segments = append(f.segments, segment{literal: literalPrefix, placeholder: name})
	}
	return f, nil
}

// extractPlaceholder splits a level like "v{majorVersion}" into its
// literal prefix "v" and placeholder name "majorVersion". Returns
// ok=false if level contains no placeholder syntax.
func extractPlaceholder(level string) (name, literalPrefix string, ok bool) {
	start := strings.Index(level, "{")
	if start < 0 {
		return "", "", false
	}
	end := strings.Index(level, "}")
	if end < start {
		return "", "", false
	}
	return level[start+1 : end], level[:start], true
}

// Fields is a fully or partially specified set of topic placeholder
// values. An empty string for any field is treated as a wildcard by
// BuildWildcard and as "don't care" by Parse-based matching.
type Fields struct {
	Interface    string
	MajorVersion string
	Manufacturer string
	SerialNumber string
	Topic        string
}

// Build renders a concrete broker topic string from fully specified
// fields. It is the caller's responsibility to ensure no field is empty
// when a concrete (non-wildcard) topic is required.
func (f *Format) Build(fields Fields) string {
	return f.render(fields, "")
}

// BuildWildcard renders a broker subscription topic, substituting the MQTT
// single-level wildcard "+" for any empty field.
func (f *Format) BuildWildcard(fields Fields) string {
	return f.render(fields, "+")
}

func (f *Format) render(fields Fields, wildcard string) string {
	values := map[string]string{
		phInterface:    fields.Interface,
		phMajorVersion: fields.MajorVersion,
		phManufacturer: fields.Manufacturer,
		phSerialNumber: fields.SerialNumber,
		phTopic:        fields.Topic,
	}
	parts := make([]string, len(f.segments))
	for i, seg := range f.segments {
		if seg.placeholder == "" {
			parts[i] = seg.literal
			continue
		}
		v := values[seg.placeholder]
		if v == "" {
			parts[i] = seg.literal + wildcard
		} else {
			parts[i] = seg.literal + v
		}
	}
	return strings.Join(parts, "/")
}

// Parse extracts placeholder values from a concrete broker topic string
// that was built from this Format. It returns ok=false if the topic does
// not have the expected number of levels or a literal prefix mismatches.
func (f *Format) Parse(topic string) (Fields, bool) {
	levels := strings.Split(topic, "/")
	if len(levels) != len(f.segments) {
		return Fields{}, false
	}
	var out Fields
	for i, seg := range f.segments {
		level := levels[i]
		if seg.placeholder == "" {
			if level != seg.literal {
				return Fields{}, false
			}
			continue
		}
		if !strings.HasPrefix(level, seg.literal) {
			return Fields{}, false
		}
		value := level[len(seg.literal):]
		switch seg.placeholder {
		case phInterface:
			out.Interface = value
		case phMajorVersion:
			out.MajorVersion = value
		case phManufacturer:
			out.Manufacturer = value
		case phSerialNumber:
			out.SerialNumber = value
		case phTopic:
			out.Topic = value
		}
	}
	return out, true
}

// maxTopicBytes is the MQTT protocol's 65535-byte UTF-8 topic-string
// limit (spec §4.1).
const maxTopicBytes = 65535

// ErrInvalidTopic is returned when a constructed broker topic exceeds the
// MQTT topic-length limit.
var ErrInvalidTopic = fmt.Errorf("subscription: broker topic exceeds %d UTF-8 bytes", maxTopicBytes)

// CheckLength fails with ErrInvalidTopic before any network call if topic
// exceeds the MQTT byte limit.
func CheckLength(topic string) error {
	if len(topic) > maxTopicBytes {
		return ErrInvalidTopic
	}
	return nil
}

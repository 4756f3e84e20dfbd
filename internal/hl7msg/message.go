// Package hl7msg parses the subset of HL7 v2 text the bridge needs (MSH,
// PID, ORC, OBR) and builds acknowledgment messages. The segment/field/
// component tree below is adapted from a simple-message-object shape used
// throughout the HL7 examples in the pack, trimmed to what ORM ingestion
// and worklist mapping actually read.
package hl7msg

import "strings"

// Segment types the bridge understands.
const (
	SegMSH = "MSH"
	SegPID = "PID"
	SegORC = "ORC"
	SegOBR = "OBR"
)

const (
	fieldSep     = "|"
	componentSep = "^"
	repetitionSep = "~"
)

// Field is one pipe-delimited value, optionally split into components.
type Field struct {
	Value      string
	Components []string
}

// Segment is one CR-terminated line: a three-letter type plus fields.
// Fields are 1-based in HL7 convention; Fields[0] here is field 1 (the
// segment type itself is not stored as a field).
type Segment struct {
	Type   string
	Fields []Field
	Raw    string
}

// Message is a parsed HL7 message: ordered segments plus the header
// values callers consult most often.
type Message struct {
	Segments  []Segment
	Raw       string
	SendingApp, SendingFacility     string
	ReceivingApp, ReceivingFacility string
	MessageType string
	ControlID   string
}

// Segment returns the first segment of the given type, or nil.
func (m *Message) Segment(segType string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Type == segType {
			return &m.Segments[i]
		}
	}
	return nil
}

// Field returns the 1-based field value of the first segment of segType,
// or "" if the segment or field is absent. MSH is special-cased: MSH-1 is
// the field separator character itself, which splitting the line on that
// same separator never produces as a token, so every other MSH field is
// shifted left by one position relative to seg.Fields.
func (m *Message) Field(segType string, field int) string {
	seg := m.Segment(segType)
	if seg == nil || field < 1 {
		return ""
	}
	if segType == SegMSH {
		if field == 1 {
			return fieldSep
		}
		field--
	}
	if field > len(seg.Fields) {
		return ""
	}
	return seg.Fields[field-1].Value
}

// Component returns the 1-based component of the 1-based field of the
// first segment of segType, or "" if any level is absent. MSH-1 (the
// field separator) has no components.
func (m *Message) Component(segType string, field, component int) string {
	seg := m.Segment(segType)
	if seg == nil || field < 1 {
		return ""
	}
	if segType == SegMSH {
		if field == 1 {
			return ""
		}
		field--
	}
	if field > len(seg.Fields) {
		return ""
	}
	comps := seg.Fields[field-1].Components
	if component < 1 || component > len(comps) {
		return ""
	}
	return comps[component-1]
}

func splitField(raw string) Field {
	if strings.Contains(raw, componentSep) {
		return Field{Value: raw, Components: strings.Split(raw, componentSep)}
	}
	return Field{Value: raw}
}

// firstRepetition strips any "~" repeated values, keeping only the first —
// the bridge has no use for repeating fields beyond patient id extraction.
func firstRepetition(raw string) string {
	if i := strings.Index(raw, repetitionSep); i >= 0 {
		return raw[:i]
	}
	return raw
}

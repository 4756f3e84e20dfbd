package hl7msg

import "strings"

const segmentSep = "\r"

// Parse splits raw HL7 text into segments and fields and extracts the MSH
// header values the bridge needs. The first segment MUST be MSH; anything
// else is a *ParseError. Parse does not reject non-ORM types — callers
// that only accept ORM call RequireORM afterward, so a parse failure and
// an unsupported-type rejection can be told apart and ACKed differently
// (§4.2 of the spec).
func Parse(raw string) (*Message, error) {
	lines := strings.Split(raw, segmentSep)

	msg := &Message{Raw: raw}
	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		seg, err := parseSegment(line)
		if err != nil {
			return nil, err
		}
		msg.Segments = append(msg.Segments, *seg)
	}

	if len(msg.Segments) == 0 || msg.Segments[0].Type != SegMSH {
		return nil, &ParseError{Reason: "missing MSH segment"}
	}

	msg.SendingApp = msg.Field(SegMSH, 3)
	msg.SendingFacility = msg.Field(SegMSH, 4)
	msg.ReceivingApp = msg.Field(SegMSH, 5)
	msg.ReceivingFacility = msg.Field(SegMSH, 6)
	msg.MessageType = msg.Field(SegMSH, 9)
	msg.ControlID = msg.Field(SegMSH, 10)

	return msg, nil
}

func parseSegment(line string) (*Segment, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) == 0 || parts[0] == "" {
		return nil, &ParseError{Reason: "empty segment"}
	}

	seg := &Segment{Type: parts[0], Raw: line}
	for _, raw := range parts[1:] {
		seg.Fields = append(seg.Fields, splitField(raw))
	}
	return seg, nil
}

// RequireORM returns an *UnsupportedTypeError if msg's MSH-9 does not
// begin with "ORM" (the bridge ingests ORM^O01 and tolerates trailing
// trigger-event/structure components such as ORM^O01^ORM_O01).
func RequireORM(msg *Message) error {
	if !strings.HasPrefix(msg.MessageType, "ORM") {
		return &UnsupportedTypeError{MessageType: msg.MessageType}
	}
	return nil
}

// PatientID extracts PID-3's first component of its first repetition,
// the identifier the order cache keys per-patient retention on.
func PatientID(msg *Message) string {
	raw := firstRepetition(msg.Field(SegPID, 3))
	if i := strings.Index(raw, componentSep); i >= 0 {
		return raw[:i]
	}
	return raw
}

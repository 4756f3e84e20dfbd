package hl7msg

import "fmt"

// ParseError reports a structurally invalid HL7 message — no usable MSH.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("hl7: %s", e.Reason) }

// UnsupportedTypeError reports a well-formed message of a type the bridge
// does not ingest (anything but ORM).
type UnsupportedTypeError struct {
	MessageType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("hl7: unsupported message type %q", e.MessageType)
}

package dimse

import "github.com/healthbridge/ormworklist/internal/dcm"

// SOP Class UIDs the worklist SCP negotiates, P3.4 Annex K and PS3.4 Annex C.
const (
	SOPClassVerification          = "1.2.840.10008.1.1"
	SOPClassModalityWorklistFind  = "1.2.840.10008.5.1.4.31"
)

// Command field values, P3.7 §E.1.
const (
	CommandCEchoRQ   uint16 = 0x0030
	CommandCEchoRSP  uint16 = 0x8030
	CommandCFindRQ   uint16 = 0x0020
	CommandCFindRSP  uint16 = 0x8020
	CommandCCancelRQ uint16 = 0x0FFF
)

// Status codes, P3.7 Annex C.
const (
	StatusSuccess                       uint16 = 0x0000
	StatusPending                       uint16 = 0xFF00
	StatusCancel                        uint16 = 0xFE00
	StatusQueryRetrieveUnableToProcess  uint16 = 0xC000
)

var (
	tagCommandGroupLength         = dcm.Tag{Group: 0x0000, Element: 0x0000}
	tagAffectedSOPClassUID        = dcm.Tag{Group: 0x0000, Element: 0x0002}
	tagCommandField               = dcm.Tag{Group: 0x0000, Element: 0x0100}
	tagMessageID                  = dcm.Tag{Group: 0x0000, Element: 0x0110}
	tagMessageIDBeingRespondedTo  = dcm.Tag{Group: 0x0000, Element: 0x0120}
	tagPriority                   = dcm.Tag{Group: 0x0000, Element: 0x0700}
	tagCommandDataSetType         = dcm.Tag{Group: 0x0000, Element: 0x0800}
	tagStatus                     = dcm.Tag{Group: 0x0000, Element: 0x0900}
)

// Priority values, P3.7 §E.1.
const PriorityMedium uint16 = 0x0000

// CommandDataSetType values indicating presence/absence of a dataset PDV.
const (
	DataSetTypeNone    uint16 = 0x0101
	DataSetTypePresent uint16 = 0x0000
)

// Command is a decoded DIMSE command set, covering the fields C-ECHO and
// C-FIND use; other command fields are not represented since the bridge
// never issues or answers any other DIMSE operation.
type Command struct {
	AffectedSOPClassUID       string
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	HasStatus                 bool
}

// EncodeCommand serializes a Command as an implicit-VR element stream,
// group length computed over everything that follows it.
func EncodeCommand(cmd Command) []byte {
	var elems []rawElement
	elems = append(elems, rawElement{Tag: tagAffectedSOPClassUID, Value: []byte(cmd.AffectedSOPClassUID)})
	elems = append(elems, rawElement{Tag: tagCommandField, Value: uint16Bytes(cmd.CommandField)})

	switch cmd.CommandField {
	case CommandCFindRSP, CommandCEchoRSP:
		elems = append(elems, rawElement{Tag: tagMessageIDBeingRespondedTo, Value: uint16Bytes(cmd.MessageIDBeingRespondedTo)})
	default:
		elems = append(elems, rawElement{Tag: tagMessageID, Value: uint16Bytes(cmd.MessageID)})
	}

	if cmd.CommandField == CommandCFindRQ {
		elems = append(elems, rawElement{Tag: tagPriority, Value: uint16Bytes(cmd.Priority)})
	}

	elems = append(elems, rawElement{Tag: tagCommandDataSetType, Value: uint16Bytes(cmd.CommandDataSetType)})

	if cmd.HasStatus {
		elems = append(elems, rawElement{Tag: tagStatus, Value: uint16Bytes(cmd.Status)})
	}

	body := encodeElements(elems)

	groupLen := rawElement{Tag: tagCommandGroupLength, Value: uint32Bytes(uint32(len(body)))}
	return append(encodeElements([]rawElement{groupLen}), body...)
}

// DecodeCommand parses a command element stream back into a Command.
func DecodeCommand(data []byte) (*Command, error) {
	raw, err := decodeElements(data)
	if err != nil {
		return nil, err
	}

	cmd := &Command{}
	for _, e := range raw {
		switch e.Tag {
		case tagAffectedSOPClassUID:
			cmd.AffectedSOPClassUID = trimTrailingSpace(e.Value)
		case tagCommandField:
			cmd.CommandField = uint16Value(e.Value)
		case tagMessageID:
			cmd.MessageID = uint16Value(e.Value)
		case tagMessageIDBeingRespondedTo:
			cmd.MessageIDBeingRespondedTo = uint16Value(e.Value)
		case tagPriority:
			cmd.Priority = uint16Value(e.Value)
		case tagCommandDataSetType:
			cmd.CommandDataSetType = uint16Value(e.Value)
		case tagStatus:
			cmd.Status = uint16Value(e.Value)
			cmd.HasStatus = true
		}
	}
	return cmd, nil
}

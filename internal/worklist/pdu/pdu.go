// Package pdu implements the DICOM Upper Layer Protocol Data Units needed
// to negotiate an association and carry DIMSE messages over it (§4.6).
// The encode/decode shape here mirrors the PDU layer used by the
// dicomnet and crgodicom example servers: a fixed 6-byte envelope
// (type, reserved, big-endian length) around a type-specific body.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PDU types, P3.8 §9.3.
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// PDU is a raw, type-tagged Upper Layer protocol data unit.
type PDU struct {
	Type byte
	Data []byte
}

// Read parses one PDU from r: 1 byte type, 1 reserved byte, a 4-byte
// big-endian body length, then the body itself.
func Read(r io.Reader) (*PDU, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[2:6])
	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("pdu: short body: %w", err)
		}
	}
	return &PDU{Type: header[0], Data: body}, nil
}

// Write serializes pdu to w in the same envelope Read expects.
func Write(w io.Writer, pdu *PDU) error {
	header := make([]byte, 6, 6+len(pdu.Data))
	header[0] = pdu.Type
	header[1] = 0
	binary.BigEndian.PutUint32(header[2:6], uint32(len(pdu.Data)))
	header = append(header, pdu.Data...)
	_, err := w.Write(header)
	return err
}

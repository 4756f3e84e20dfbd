// Package dimse implements the DIMSE command set and dataset encoding
// used for C-ECHO and C-FIND (§4.6): an implicit-VR little-endian element
// stream, which is all the worklist bridge needs since every tag it reads
// or writes — patient/study identifiers, command fields — is numeric or
// plain text, never binary pixel data.
package dimse

import (
	"encoding/binary"
	"fmt"

	"github.com/healthbridge/ormworklist/internal/dcm"
)

type rawElement struct {
	Tag   dcm.Tag
	Value []byte
}

// encodeElements serializes tag/value pairs as implicit-VR LE elements:
// group(2) + element(2) + length(4) + value, all little-endian, value
// padded to an even length with a trailing space.
func encodeElements(elems []rawElement) []byte {
	var out []byte
	for _, e := range elems {
		value := e.Value
		if len(value)%2 != 0 {
			value = append(append([]byte{}, value...), ' ')
		}

		header := make([]byte, 8)
		binary.LittleEndian.PutUint16(header[0:2], e.Tag.Group)
		binary.LittleEndian.PutUint16(header[2:4], e.Tag.Element)
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(value)))

		out = append(out, header...)
		out = append(out, value...)
	}
	return out
}

func decodeElements(data []byte) ([]rawElement, error) {
	var elems []rawElement
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("dimse: truncated element header")
		}
		group := binary.LittleEndian.Uint16(data[0:2])
		element := binary.LittleEndian.Uint16(data[2:4])
		length := binary.LittleEndian.Uint32(data[4:8])
		if int(length) > len(data)-8 {
			return nil, fmt.Errorf("dimse: element length exceeds buffer")
		}
		value := data[8 : 8+int(length)]
		elems = append(elems, rawElement{Tag: dcm.Tag{Group: group, Element: element}, Value: value})
		data = data[8+int(length):]
	}
	return elems, nil
}

func trimTrailingSpace(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}

func uint16Value(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func uint16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

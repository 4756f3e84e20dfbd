package pdu

import (
	"encoding/binary"
	"fmt"
)

// Variable item types used inside A-ASSOCIATE-RQ/AC, P3.8 §9.3.2/9.3.3.
const (
	itemApplicationContext    = 0x10
	itemPresentationContextRQ = 0x20
	itemPresentationContextAC = 0x21
	itemAbstractSyntax        = 0x30
	itemTransferSyntax        = 0x40
	itemUserInformation       = 0x50
	itemMaxPDULength          = 0x51
)

// DefaultApplicationContextUID is the standard DICOM application context.
const DefaultApplicationContextUID = "1.2.840.10008.3.1.1.1"

// item is a generic type-length-value entry: 1 byte type, 1 reserved
// byte, 2-byte big-endian length, then the value.
type item struct {
	Type  byte
	Value []byte
}

func encodeItem(typ byte, value []byte) []byte {
	out := make([]byte, 4, 4+len(value))
	out[0] = typ
	out[1] = 0
	binary.BigEndian.PutUint16(out[2:4], uint16(len(value)))
	return append(out, value...)
}

func decodeItems(data []byte) ([]item, error) {
	var items []item
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("pdu: truncated item header")
		}
		typ := data[0]
		length := binary.BigEndian.Uint16(data[2:4])
		if int(length) > len(data)-4 {
			return nil, fmt.Errorf("pdu: item length exceeds buffer")
		}
		value := data[4 : 4+int(length)]
		items = append(items, item{Type: typ, Value: value})
		data = data[4+int(length):]
	}
	return items, nil
}

func asciiTrim(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}

func paddedASCII(s string, width int) []byte {
	out := make([]byte, width)
	copy(out, s)
	for i := len(s); i < width; i++ {
		out[i] = ' '
	}
	return out
}

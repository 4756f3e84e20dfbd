package pdu

import (
	"encoding/binary"
	"fmt"
)

// PresentationContextRQ is one proposed context from an A-ASSOCIATE-RQ.
type PresentationContextRQ struct {
	ID              byte
	AbstractSyntax  string
	TransferSyntaxes []string
}

// AssociateRQ is the parsed form of an A-ASSOCIATE-RQ PDU body.
type AssociateRQ struct {
	CalledAE, CallingAE string
	ApplicationContext  string
	PresentationContexts []PresentationContextRQ
	MaxPDULength        uint32
}

// ParseAssociateRQ decodes an A-ASSOCIATE-RQ PDU body (P3.8 §9.3.2).
func ParseAssociateRQ(body []byte) (*AssociateRQ, error) {
	if len(body) < 68 {
		return nil, fmt.Errorf("pdu: associate-rq body too short")
	}
	rq := &AssociateRQ{
		CalledAE:  asciiTrim(body[4:20]),
		CallingAE: asciiTrim(body[20:36]),
	}

	items, err := decodeItems(body[68:])
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		switch it.Type {
		case itemApplicationContext:
			rq.ApplicationContext = string(it.Value)
		case itemPresentationContextRQ:
			pc, err := parsePresentationContextRQ(it.Value)
			if err != nil {
				return nil, err
			}
			rq.PresentationContexts = append(rq.PresentationContexts, *pc)
		case itemUserInformation:
			rq.MaxPDULength = parseMaxPDULength(it.Value)
		}
	}
	return rq, nil
}

func parsePresentationContextRQ(data []byte) (*PresentationContextRQ, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("pdu: truncated presentation context")
	}
	pc := &PresentationContextRQ{ID: data[0]}
	sub, err := decodeItems(data[4:])
	if err != nil {
		return nil, err
	}
	for _, s := range sub {
		switch s.Type {
		case itemAbstractSyntax:
			pc.AbstractSyntax = string(s.Value)
		case itemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, string(s.Value))
		}
	}
	return pc, nil
}

func parseMaxPDULength(userInfo []byte) uint32 {
	items, err := decodeItems(userInfo)
	if err != nil {
		return 0
	}
	for _, it := range items {
		if it.Type == itemMaxPDULength && len(it.Value) == 4 {
			return binary.BigEndian.Uint32(it.Value)
		}
	}
	return 0
}

// Presentation context result codes, P3.8 §9.3.3.2.
const (
	ResultAcceptance                     = 0
	ResultUserRejection                  = 1
	ResultNoReason                       = 2
	ResultAbstractSyntaxNotSupported     = 3
	ResultTransferSyntaxesNotSupported   = 4
)

// PresentationContextAC is one accepted/rejected context in an AC reply.
type PresentationContextAC struct {
	ID              byte
	Result          byte
	TransferSyntax  string
}

// EncodeAssociateAC builds an A-ASSOCIATE-AC PDU body accepting calledAE
// as our own title and echoing back one result per proposed context.
func EncodeAssociateAC(calledAE, callingAE string, contexts []PresentationContextAC, maxPDULength uint32) []byte {
	body := make([]byte, 68)
	binary.BigEndian.PutUint16(body[0:2], 1) // protocol version
	copy(body[4:20], paddedASCII(calledAE, 16))
	copy(body[20:36], paddedASCII(callingAE, 16))

	var items []byte
	items = append(items, encodeItem(itemApplicationContext, []byte(DefaultApplicationContextUID))...)
	for _, pc := range contexts {
		items = append(items, encodePresentationContextAC(pc)...)
	}
	items = append(items, encodeUserInformation(maxPDULength)...)

	return append(body, items...)
}

func encodePresentationContextAC(pc PresentationContextAC) []byte {
	value := make([]byte, 4)
	value[0] = pc.ID
	value[2] = pc.Result
	if pc.TransferSyntax != "" {
		value = append(value, encodeItem(itemTransferSyntax, []byte(pc.TransferSyntax))...)
	}
	return encodeItem(itemPresentationContextAC, value)
}

func encodeUserInformation(maxPDULength uint32) []byte {
	lenBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBytes, maxPDULength)
	maxLenItem := encodeItem(itemMaxPDULength, lenBytes)
	return encodeItem(itemUserInformation, maxLenItem)
}

// A-ASSOCIATE-RJ result/source/reason, P3.8 §9.3.4.
const (
	RejectResultPermanent = 1
	RejectSourceServiceUser = 1
	RejectReasonNoReasonGiven = 1
)

// EncodeAssociateRJ builds a permanent, user-sourced A-ASSOCIATE-RJ body.
func EncodeAssociateRJ(reason byte) []byte {
	return []byte{0, RejectResultPermanent, RejectSourceServiceUser, reason}
}

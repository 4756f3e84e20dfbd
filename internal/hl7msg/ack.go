package hl7msg

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ack codes per §4.2.
const (
	AckAccept    = "AA"
	AckAppError  = "AE"
	AckAppReject = "AR"
)

const hl7Timestamp = "20060102150405"

// BuildAck produces an ACK message for msg: sender/receiver swapped,
// stamped with the current time, carrying an MSA segment with code and
// the inbound control id. A non-AA code appends a pipe-escaped reason as
// MSA-3.
func BuildAck(msg *Message, code, reason string, now time.Time) string {
	msh := fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||ACK|%s|P|2.3",
		msg.ReceivingApp, msg.ReceivingFacility,
		msg.SendingApp, msg.SendingFacility,
		now.Format(hl7Timestamp), msg.ControlID)

	msa := fmt.Sprintf("MSA|%s|%s", code, msg.ControlID)
	if code != AckAccept && reason != "" {
		msa = fmt.Sprintf("%s|%s", msa, escapePipes(reason))
	}

	return msh + "\r" + msa + "\r"
}

// BuildDefaultAck produces the "default" ACK described in §4.2 for a
// message that lacked a usable MSH at all: empty sender/receiver fields,
// a tick-based control id, and AR.
func BuildDefaultAck(reason string, now time.Time) string {
	id := strconv.FormatInt(now.UnixNano(), 10)
	msh := fmt.Sprintf("MSH|^~\\&|||||%s||ACK|%s|P|2.3", now.Format(hl7Timestamp), id)
	msa := fmt.Sprintf("MSA|%s|%s|%s", AckAppReject, id, escapePipes(reason))
	return msh + "\r" + msa + "\r"
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\F\\")
}

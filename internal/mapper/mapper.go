// Package mapper implements the §4.4 HL7 ORM → DICOM dataset mapping. The
// spec deliberately leaves the exact clinical field list as an external
// collaborator's concern; this package picks one reasonable, deterministic
// mapping (grounded on the PID/ORC/OBR field usage in the crgodicom HL7
// ORM parser) and documents its choices rather than claiming clinical
// authority over them.
package mapper

import (
	"math/big"

	"github.com/google/uuid"
	"github.com/healthbridge/ormworklist/internal/dcm"
	"github.com/healthbridge/ormworklist/internal/hl7msg"
)

// MappingError reports that raw could not be turned into a dataset, or
// that a parsed message fundamentally lacks what the worklist needs.
type MappingError struct {
	Reason string
}

func (e *MappingError) Error() string { return "mapper: " + e.Reason }

// Map turns a raw ORM message into a worklist dataset. It returns (nil,
// nil) — not an error — when the message parses but cannot be usefully
// represented (e.g. no patient identification at all), matching §4.2's
// "mapping yields no dataset" case, which the caller ACKs as AE without
// caching. A structural parse failure is returned as a *MappingError.
func Map(raw string) (*dcm.DataSet, error) {
	msg, err := hl7msg.Parse(raw)
	if err != nil {
		return nil, &MappingError{Reason: err.Error()}
	}

	patientID := hl7msg.PatientID(msg)
	if patientID == "" && msg.Field(hl7msg.SegPID, 5) == "" {
		return nil, nil
	}

	ds := dcm.NewDataSet()
	ds.Set(dcm.TagSpecificCharacterSet, "")
	ds.Set(dcm.TagPatientID, patientID)
	ds.Set(dcm.TagPatientName, toDicomPersonName(msg.Field(hl7msg.SegPID, 5)))
	ds.Set(dcm.TagPatientBirthDate, msg.Field(hl7msg.SegPID, 7))
	ds.Set(dcm.TagPatientSex, msg.Field(hl7msg.SegPID, 8))
	ds.Set(dcm.TagReferringPhysicianName, toDicomPersonName(msg.Field(hl7msg.SegOBR, 16)))
	ds.Set(dcm.TagAccessionNumber, firstNonEmpty(msg.Field(hl7msg.SegOBR, 3), msg.Field(hl7msg.SegORC, 3)))
	ds.Set(dcm.TagStudyInstanceUID, studyInstanceUID(msg))

	step := dcm.NewDataSet()
	step.Set(dcm.TagScheduledStationAETitle, msg.Field(hl7msg.SegOBR, 18))
	step.Set(dcm.TagScheduledProcedureStepStartDate, msg.Field(hl7msg.SegOBR, 7))
	step.Set(dcm.TagModality, msg.Field(hl7msg.SegOBR, 24))
	ds.SetSequence(dcm.TagScheduledProcedureStepSequence, []*dcm.DataSet{step})

	return ds, nil
}

// toDicomPersonName rewrites an HL7 XPN-shaped component string
// (Family^Given^Middle) into DICOM PN form (Family^Given^Middle), which
// happen to share the caret-delimited component order, so this is a
// pass-through that also tolerates an HL7 field with no components.
func toDicomPersonName(hl7Name string) string {
	return hl7Name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// studyInstanceUID derives a stable UID from the order's control id (or,
// lacking one, the raw message), using the DICOM-sanctioned 2.25 root for
// UUID-derived UIDs so every field stays a numeric dot-separated string.
func studyInstanceUID(msg *hl7msg.Message) string {
	seed := msg.ControlID
	if seed == "" {
		seed = msg.Raw
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))

	n := new(big.Int).SetBytes(id[:])
	return "2.25." + n.String()
}

// Package dcm holds the small set of DICOM data element primitives the
// worklist bridge needs: tags and an ordered dataset used by the mapper
// and the C-FIND filter. Values are held as strings; no VRs are modelled.
// It is not a general DICOM codec — no
// Part 10 file format, no pixel data, no transfer syntax negotiation
// beyond what the association layer requires.
package dcm

import "fmt"

// Tag identifies a DICOM data element by its group and element numbers.
type Tag struct {
	Group   uint16
	Element uint16
}

func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Worklist tags used by the mapper (§4.4) and the C-FIND filter (§4.6).
var (
	TagSpecificCharacterSet           = Tag{0x0008, 0x0005}
	TagAccessionNumber                = Tag{0x0008, 0x0050}
	TagReferringPhysicianName         = Tag{0x0008, 0x0090}
	TagPatientName                    = Tag{0x0010, 0x0010}
	TagPatientID                      = Tag{0x0010, 0x0020}
	TagPatientBirthDate               = Tag{0x0010, 0x0030}
	TagPatientSex                     = Tag{0x0010, 0x0040}
	TagStudyInstanceUID               = Tag{0x0020, 0x000D}
	TagQueryRetrieveLevel             = Tag{0x0008, 0x0052}
	TagScheduledProcedureStepSequence = Tag{0x0040, 0x0100}
	TagScheduledStationAETitle        = Tag{0x0040, 0x0001}
	TagScheduledProcedureStepStartDate = Tag{0x0040, 0x0002}
	TagModality                       = Tag{0x0008, 0x0060}
)

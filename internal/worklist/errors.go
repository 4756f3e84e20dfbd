package worklist

import "fmt"

// AssociationError reports a failure at the DICOM association layer —
// malformed PDU, rejected negotiation, or a DIMSE decode failure — that
// ends one association without affecting the SCP's accept loop or any
// other association.
type AssociationError struct {
	Op  string
	Err error
}

func (e *AssociationError) Error() string { return fmt.Sprintf("worklist: %s: %v", e.Op, e.Err) }
func (e *AssociationError) Unwrap() error { return e.Err }

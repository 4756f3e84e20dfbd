package worklist

import (
	"context"
	"fmt"
	"net"

	"github.com/healthbridge/ormworklist/internal/cache"
	"github.com/healthbridge/ormworklist/internal/dcm"
	"github.com/healthbridge/ormworklist/internal/mapper"
	"github.com/healthbridge/ormworklist/internal/worklist/dimse"
	"github.com/healthbridge/ormworklist/internal/worklist/pdu"
	"github.com/sirupsen/logrus"
)

// association holds the state negotiated for one accepted connection:
// which presentation context ID maps to which abstract syntax, so an
// incoming P-DATA-TF can be routed to the right DIMSE handler.
type association struct {
	conn      net.Conn
	cache     *cache.Cache
	aeTitle   string
	log       *logrus.Entry
	contextID map[byte]string // context id -> abstract syntax UID
}

// serveAssociation drives one accepted TCP connection from A-ASSOCIATE
// through release or abort, per §4.6. It returns when the peer closes the
// connection, releases, aborts, or ctx is cancelled.
func serveAssociation(ctx context.Context, conn net.Conn, c *cache.Cache, aeTitle string, log *logrus.Entry) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	assoc := &association{conn: conn, cache: c, aeTitle: aeTitle, log: log, contextID: map[byte]string{}}

	first, err := pdu.Read(conn)
	if err != nil {
		log.WithError(&AssociationError{Op: "read first PDU", Err: err}).Debug("association ended")
		return
	}
	if first.Type != pdu.TypeAssociateRQ {
		log.WithError(&AssociationError{Op: "negotiate", Err: fmt.Errorf("expected A-ASSOCIATE-RQ, got PDU type %d", first.Type)}).Warn("rejecting association")
		pdu.Write(conn, &pdu.PDU{Type: pdu.TypeAbort, Data: []byte{0, 0, 2, 2}})
		return
	}
	if !assoc.negotiate(first.Data) {
		return
	}

	for {
		p, err := pdu.Read(conn)
		if err != nil {
			return
		}
		switch p.Type {
		case pdu.TypePDataTF:
			if !assoc.handlePData(p.Data) {
				log.WithError(&AssociationError{Op: "handle P-DATA-TF", Err: fmt.Errorf("malformed DIMSE message")}).Warn("aborting association")
				return
			}
		case pdu.TypeReleaseRQ:
			pdu.Write(conn, &pdu.PDU{Type: pdu.TypeReleaseRP})
			return
		case pdu.TypeAbort:
			return
		default:
			pdu.Write(conn, &pdu.PDU{Type: pdu.TypeAbort, Data: []byte{0, 0, 2, 2}})
			return
		}
	}
}

// negotiate parses the A-ASSOCIATE-RQ, accepts Verification and Modality
// Worklist FIND contexts and rejects everything else, and replies with an
// A-ASSOCIATE-AC. It returns false if the association could not proceed
// (malformed request, or no context was acceptable).
func (a *association) negotiate(body []byte) bool {
	rq, err := pdu.ParseAssociateRQ(body)
	if err != nil {
		a.log.WithError(&AssociationError{Op: "parse A-ASSOCIATE-RQ", Err: err}).Warn("rejecting malformed association request")
		pdu.Write(a.conn, &pdu.PDU{Type: pdu.TypeAssociateRJ, Data: pdu.EncodeAssociateRJ(pdu.RejectReasonNoReasonGiven)})
		return false
	}

	var results []pdu.PresentationContextAC
	accepted := 0
	for _, pc := range rq.PresentationContexts {
		result := pdu.ResultAbstractSyntaxNotSupported
		transferSyntax := ""
		if pc.AbstractSyntax == dimse.SOPClassVerification || pc.AbstractSyntax == dimse.SOPClassModalityWorklistFind {
			if ts, ok := pickTransferSyntax(pc.TransferSyntaxes); ok {
				result = pdu.ResultAcceptance
				transferSyntax = ts
				a.contextID[pc.ID] = pc.AbstractSyntax
				accepted++
			} else {
				result = pdu.ResultTransferSyntaxesNotSupported
			}
		}
		results = append(results, pdu.PresentationContextAC{ID: pc.ID, Result: byte(result), TransferSyntax: transferSyntax})
	}

	ac := pdu.EncodeAssociateAC(a.aeTitle, rq.CallingAE, results, maxPDULength)
	if err := pdu.Write(a.conn, &pdu.PDU{Type: pdu.TypeAssociateAC, Data: ac}); err != nil {
		return false
	}
	return accepted > 0
}

// implicitVRLittleEndian is the only transfer syntax the bridge offers,
// since every dataset it handles is plain text/numeric elements.
const implicitVRLittleEndian = "1.2.840.10008.1.2"

const maxPDULength = 16384

func pickTransferSyntax(offered []string) (string, bool) {
	for _, ts := range offered {
		if ts == implicitVRLittleEndian {
			return ts, true
		}
	}
	return "", false
}

// handlePData accumulates PDVs for one DIMSE message and dispatches once
// the command (and dataset, if any) is complete. It returns false if the
// association should be torn down.
func (a *association) handlePData(body []byte) bool {
	pdvs, err := pdu.DecodePDataTF(body)
	if err != nil {
		return false
	}

	var commandBytes, datasetBytes []byte
	for _, pdv := range pdvs {
		if pdv.IsCommand {
			commandBytes = append(commandBytes, pdv.Data...)
		} else {
			datasetBytes = append(datasetBytes, pdv.Data...)
		}
	}
	if commandBytes == nil {
		return true
	}

	cmd, err := dimse.DecodeCommand(commandBytes)
	if err != nil {
		return false
	}

	switch cmd.CommandField {
	case dimse.CommandCEchoRQ:
		return a.handleEcho(cmd)
	case dimse.CommandCFindRQ:
		return a.handleFind(cmd, datasetBytes)
	default:
		return true
	}
}

func (a *association) contextIDFor(sopClass string) byte {
	for id, syntax := range a.contextID {
		if syntax == sopClass {
			return id
		}
	}
	return 1
}

func (a *association) handleEcho(cmd *dimse.Command) bool {
	resp := dimse.EncodeCommand(dimse.Command{
		AffectedSOPClassUID:       dimse.SOPClassVerification,
		CommandField:              dimse.CommandCEchoRSP,
		MessageIDBeingRespondedTo: cmd.MessageID,
		CommandDataSetType:        dimse.DataSetTypeNone,
		Status:                    dimse.StatusSuccess,
		HasStatus:                 true,
	})
	pdv := pdu.PresentationDataValue{ContextID: a.contextIDFor(dimse.SOPClassVerification), IsCommand: true, IsLast: true, Data: resp}
	return pdu.Write(a.conn, &pdu.PDU{Type: pdu.TypePDataTF, Data: pdu.EncodePDataTF([]pdu.PresentationDataValue{pdv})}) == nil
}

// handleFind runs a C-FIND-RQ against the order cache, streaming one
// Pending response per matching order followed by a terminal Success, or
// an immediate QueryRetrieveUnableToProcess if the request's query/retrieve
// level is anything but the worklist's implicit level (§4.6/§8 scenario 5).
func (a *association) handleFind(cmd *dimse.Command, datasetBytes []byte) bool {
	request, err := dimse.DecodeDataSet(datasetBytes)
	if err != nil {
		return a.sendFindFinal(cmd, dimse.StatusQueryRetrieveUnableToProcess)
	}

	if level, present := request.Get(dcm.TagQueryRetrieveLevel); present && level != "" {
		a.log.WithField("qr_level", level).Debug("rejecting unsupported query/retrieve level")
		return a.sendFindFinal(cmd, dimse.StatusQueryRetrieveUnableToProcess)
	}

	orders, err := a.cache.List()
	if err != nil {
		a.log.WithError(err).Warn("failed to list cache for C-FIND")
		return a.sendFindFinal(cmd, dimse.StatusQueryRetrieveUnableToProcess)
	}

	contextID := a.contextIDFor(dimse.SOPClassModalityWorklistFind)
	for _, order := range orders {
		ds, err := order.Dataset(mapper.Map)
		if err != nil || ds == nil {
			continue
		}
		if !Matches(request, ds) {
			continue
		}
		if !a.sendFindPending(cmd, contextID, ds) {
			return false
		}
	}
	return a.sendFindFinal(cmd, dimse.StatusSuccess)
}

func (a *association) sendFindPending(cmd *dimse.Command, contextID byte, ds *dcm.DataSet) bool {
	respCmd := dimse.EncodeCommand(dimse.Command{
		AffectedSOPClassUID:       dimse.SOPClassModalityWorklistFind,
		CommandField:              dimse.CommandCFindRSP,
		MessageIDBeingRespondedTo: cmd.MessageID,
		CommandDataSetType:        dimse.DataSetTypePresent,
		Status:                    dimse.StatusPending,
		HasStatus:                 true,
	})
	pdvs := []pdu.PresentationDataValue{
		{ContextID: contextID, IsCommand: true, IsLast: true, Data: respCmd},
		{ContextID: contextID, IsCommand: false, IsLast: true, Data: dimse.EncodeDataSet(ds)},
	}
	return pdu.Write(a.conn, &pdu.PDU{Type: pdu.TypePDataTF, Data: pdu.EncodePDataTF(pdvs)}) == nil
}

func (a *association) sendFindFinal(cmd *dimse.Command, status uint16) bool {
	respCmd := dimse.EncodeCommand(dimse.Command{
		AffectedSOPClassUID:       dimse.SOPClassModalityWorklistFind,
		CommandField:              dimse.CommandCFindRSP,
		MessageIDBeingRespondedTo: cmd.MessageID,
		CommandDataSetType:        dimse.DataSetTypeNone,
		Status:                    status,
		HasStatus:                 true,
	})
	pdv := pdu.PresentationDataValue{ContextID: a.contextIDFor(dimse.SOPClassModalityWorklistFind), IsCommand: true, IsLast: true, Data: respCmd}
	return pdu.Write(a.conn, &pdu.PDU{Type: pdu.TypePDataTF, Data: pdu.EncodePDataTF([]pdu.PresentationDataValue{pdv})}) == nil
}

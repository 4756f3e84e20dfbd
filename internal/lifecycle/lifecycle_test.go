package lifecycle

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"testing"
	"time"

	"github.com/healthbridge/ormworklist/internal/config"
	"github.com/healthbridge/ormworklist/internal/dcm"
	"github.com/healthbridge/ormworklist/internal/mllp"
	"github.com/healthbridge/ormworklist/internal/worklist/dimse"
	"github.com/healthbridge/ormworklist/internal/worklist/pdu"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testHL7Port   = 28444
	testDicomPort = 28445
)

func ormMessage(controlID, patientID, patientName string) string {
	return "MSH|^~\\&|HIS|MC|LIS|MC|20060307110114||ORM^O01|" + controlID + "|P|2.3\r" +
		"PID|||" + patientID + "||" + patientName + "\r" +
		"ORC|NW|20060307110114\r" +
		"OBR|1|ACC1||CBC|||20060307110114|||||||||Smith^Robert||||||||CT"
}

func startTestBridge(t *testing.T) *Bridge {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	*cfg = *testConfig(dir)

	log := logrus.NewEntry(logrus.New())
	log.Logger.SetOutput(os.Stderr)

	bridge, err := New(cfg, log)
	require.NoError(t, err)
	require.NoError(t, bridge.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bridge.Stop(ctx)
	})

	time.Sleep(150 * time.Millisecond) // let accept loops bind
	return bridge
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		HL7: config.HL7Config{
			ListenPort:        testHL7Port,
			ListenIP:          "127.0.0.1",
			MaxORMsPerPatient: 5,
		},
		Dicom: config.DicomConfig{
			AETitle:        "TESTBRIDGE",
			ListenPort:     testDicomPort,
			MaxConnections: 10,
		},
		Cache: config.CacheConfig{
			Folder:                 dir,
			RetentionDays:          3,
			AutoCleanup:            true,
			CleanupIntervalMinutes: 60,
		},
		Order: config.OrderConfig{ExpiryHours: 72},
	}
}

func sendORM(t *testing.T, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", "127.0.0.1:28444")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(mllp.Encode([]byte(raw)))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

// TestIngestAndAck covers §8 scenario 1: a well-formed ORM is ACKed AA and
// lands in the cache.
func TestIngestAndAck(t *testing.T) {
	bridge := startTestBridge(t)

	ack := sendORM(t, ormMessage("CTRL1", "12001", "Jones^John"))
	require.Contains(t, ack, "MSA|AA|CTRL1")

	orders, err := bridge.Cache.List()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, "12001", orders[0].PatientID)
}

// TestPerPatientCapEviction covers §8 scenario 2: six orders for the same
// patient with a cap of 5 leaves exactly 5, the oldest evicted.
func TestPerPatientCapEviction(t *testing.T) {
	bridge := startTestBridge(t)

	for i := 0; i < 6; i++ {
		controlID := "CAP" + string(rune('A'+i))
		sendORM(t, ormMessage(controlID, "55001", "Doe^Jane"))
		time.Sleep(10 * time.Millisecond)
	}

	orders, err := bridge.Cache.List()
	require.NoError(t, err)

	var forPatient int
	for _, o := range orders {
		if o.PatientID == "55001" {
			forPatient++
			require.NotEqual(t, "CAPA", o.ControlID)
		}
	}
	require.Equal(t, 5, forPatient)
}

// dicomClient is a minimal C-FIND client used only to drive the worklist
// SCP end to end in tests.
type dicomClient struct {
	conn net.Conn
}

func dialWorklist(t *testing.T) *dicomClient {
	t.Helper()
	conn, err := net.Dial("tcp", "127.0.0.1:28445")
	require.NoError(t, err)
	return &dicomClient{conn: conn}
}

func (c *dicomClient) associate(t *testing.T) {
	t.Helper()
	body := make([]byte, 68)
	binary.BigEndian.PutUint16(body[0:2], 1)
	copy(body[4:20], padded("ANY", 16))
	copy(body[20:36], padded("TESTCLIENT", 16))

	var items []byte
	items = append(items, tlvItem(0x10, []byte(pdu.DefaultApplicationContextUID))...)

	var pcValue []byte
	pcValue = append(pcValue, 1, 0, 0, 0)
	pcValue = append(pcValue, tlvItem(0x30, []byte(dimse.SOPClassModalityWorklistFind))...)
	pcValue = append(pcValue, tlvItem(0x40, []byte("1.2.840.10008.1.2"))...)
	items = append(items, tlvItem(0x20, pcValue)...)

	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, 16384)
	userInfo := tlvItem(0x51, maxLen)
	items = append(items, tlvItem(0x50, userInfo)...)

	require.NoError(t, pdu.Write(c.conn, &pdu.PDU{Type: pdu.TypeAssociateRQ, Data: append(body, items...)}))

	resp, err := pdu.Read(c.conn)
	require.NoError(t, err)
	require.Equal(t, byte(pdu.TypeAssociateAC), resp.Type)
}

func (c *dicomClient) find(t *testing.T, request *dcm.DataSet) []*dcm.DataSet {
	t.Helper()
	cmd := dimse.EncodeCommand(dimse.Command{
		AffectedSOPClassUID: dimse.SOPClassModalityWorklistFind,
		CommandField:        dimse.CommandCFindRQ,
		MessageID:           1,
		Priority:            dimse.PriorityMedium,
		CommandDataSetType:  dimse.DataSetTypePresent,
	})
	dataset := dimse.EncodeDataSet(request)

	pdvs := []pdu.PresentationDataValue{
		{ContextID: 1, IsCommand: true, IsLast: true, Data: cmd},
		{ContextID: 1, IsCommand: false, IsLast: true, Data: dataset},
	}
	require.NoError(t, pdu.Write(c.conn, &pdu.PDU{Type: pdu.TypePDataTF, Data: pdu.EncodePDataTF(pdvs)}))

	var results []*dcm.DataSet
	for {
		p, err := pdu.Read(c.conn)
		require.NoError(t, err)
		require.Equal(t, byte(pdu.TypePDataTF), p.Type)

		pdvs, err := pdu.DecodePDataTF(p.Data)
		require.NoError(t, err)

		var respCmd *dimse.Command
		var respDataset []byte
		for _, pdv := range pdvs {
			if pdv.IsCommand {
				respCmd, err = dimse.DecodeCommand(pdv.Data)
				require.NoError(t, err)
			} else {
				respDataset = pdv.Data
			}
		}

		if respCmd.Status == dimse.StatusPending {
			ds, err := dimse.DecodeDataSet(respDataset)
			require.NoError(t, err)
			results = append(results, ds)
			continue
		}
		return results
	}
}

func tlvItem(typ byte, value []byte) []byte {
	out := make([]byte, 4, 4+len(value))
	out[0] = typ
	binary.BigEndian.PutUint16(out[2:4], uint16(len(value)))
	return append(out, value...)
}

func padded(s string, width int) []byte {
	out := make([]byte, width)
	copy(out, s)
	for i := len(s); i < width; i++ {
		out[i] = ' '
	}
	return out
}

// TestCFindExactPatientID covers §8 scenario 3: querying by exact
// PatientID returns the one matching order as Pending then Success.
func TestCFindExactPatientID(t *testing.T) {
	startTestBridge(t)
	sendORM(t, ormMessage("FIND1", "12001", "Jones^John"))
	time.Sleep(50 * time.Millisecond)

	client := dialWorklist(t)
	defer client.conn.Close()
	client.associate(t)

	req := dcm.NewDataSet()
	req.Set(dcm.TagPatientID, "12001")

	results := client.find(t, req)
	require.Len(t, results, 1)
	v, _ := results[0].Get(dcm.TagPatientID)
	require.Equal(t, "12001", v)
}

// TestCFindWildcardPatientName covers §8 scenario 4: a trailing-wildcard
// name query substring-matches.
func TestCFindWildcardPatientName(t *testing.T) {
	startTestBridge(t)
	sendORM(t, ormMessage("FIND2", "13001", "Jonas^Peter"))
	time.Sleep(50 * time.Millisecond)

	client := dialWorklist(t)
	defer client.conn.Close()
	client.associate(t)

	req := dcm.NewDataSet()
	req.Set(dcm.TagPatientName, "Jon*")

	results := client.find(t, req)
	require.Len(t, results, 1)
}

// TestCFindUnsupportedQueryLevel covers §8 scenario 5: a non-empty
// QueryRetrieveLevel yields an immediate failure status, no Pending.
func TestCFindUnsupportedQueryLevel(t *testing.T) {
	startTestBridge(t)

	client := dialWorklist(t)
	defer client.conn.Close()
	client.associate(t)

	req := dcm.NewDataSet()
	req.Set(dcm.TagQueryRetrieveLevel, "STUDY")

	cmd := dimse.EncodeCommand(dimse.Command{
		AffectedSOPClassUID: dimse.SOPClassModalityWorklistFind,
		CommandField:        dimse.CommandCFindRQ,
		MessageID:           1,
		CommandDataSetType:  dimse.DataSetTypePresent,
	})
	dataset := dimse.EncodeDataSet(req)
	pdvs := []pdu.PresentationDataValue{
		{ContextID: 1, IsCommand: true, IsLast: true, Data: cmd},
		{ContextID: 1, IsCommand: false, IsLast: true, Data: dataset},
	}
	require.NoError(t, pdu.Write(client.conn, &pdu.PDU{Type: pdu.TypePDataTF, Data: pdu.EncodePDataTF(pdvs)}))

	p, err := pdu.Read(client.conn)
	require.NoError(t, err)
	pdvsResp, err := pdu.DecodePDataTF(p.Data)
	require.NoError(t, err)

	respCmd, err := dimse.DecodeCommand(pdvsResp[0].Data)
	require.NoError(t, err)
	require.Equal(t, dimse.StatusQueryRetrieveUnableToProcess, respCmd.Status)
}

// TestSweepExpiredRemovesAll covers §8 scenario 6: after the expiry
// horizon, a sweep removes every order and reports the count.
func TestSweepExpiredRemovesAll(t *testing.T) {
	bridge := startTestBridge(t)

	sendORM(t, ormMessage("SWEEP1", "90001", "Old^Patient"))
	time.Sleep(20 * time.Millisecond)

	removed, err := bridge.Cache.SweepExpired(0) // zero-hour horizon: everything is "expired"
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, 1)

	orders, err := bridge.Cache.List()
	require.NoError(t, err)
	require.Empty(t, orders)
}

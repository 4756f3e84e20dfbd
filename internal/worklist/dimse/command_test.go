package dimse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandRoundTripCFindRQ(t *testing.T) {
	cmd := Command{
		AffectedSOPClassUID: SOPClassModalityWorklistFind,
		CommandField:        CommandCFindRQ,
		MessageID:           7,
		Priority:            PriorityMedium,
		CommandDataSetType:  DataSetTypePresent,
	}
	data := EncodeCommand(cmd)

	got, err := DecodeCommand(data)
	require.NoError(t, err)
	require.Equal(t, cmd.AffectedSOPClassUID, got.AffectedSOPClassUID)
	require.Equal(t, cmd.CommandField, got.CommandField)
	require.Equal(t, cmd.MessageID, got.MessageID)
	require.Equal(t, cmd.CommandDataSetType, got.CommandDataSetType)
	require.False(t, got.HasStatus)
}

func TestCommandRoundTripCFindRSPWithStatus(t *testing.T) {
	cmd := Command{
		AffectedSOPClassUID:       SOPClassModalityWorklistFind,
		CommandField:              CommandCFindRSP,
		MessageIDBeingRespondedTo: 7,
		CommandDataSetType:        DataSetTypeNone,
		Status:                    StatusSuccess,
		HasStatus:                 true,
	}
	data := EncodeCommand(cmd)

	got, err := DecodeCommand(data)
	require.NoError(t, err)
	require.Equal(t, uint16(7), got.MessageIDBeingRespondedTo)
	require.True(t, got.HasStatus)
	require.Equal(t, StatusSuccess, got.Status)
}

func TestCommandGroupLengthPrecedesBody(t *testing.T) {
	cmd := Command{
		AffectedSOPClassUID: SOPClassVerification,
		CommandField:        CommandCEchoRQ,
		MessageID:           1,
		CommandDataSetType:  DataSetTypeNone,
	}
	data := EncodeCommand(cmd)
	require.True(t, len(data) >= 8)
	group := uint16Value(data[0:2])
	element := uint16Value(data[2:4])
	require.Equal(t, uint16(0x0000), group)
	require.Equal(t, uint16(0x0000), element)
}

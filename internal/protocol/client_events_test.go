package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientEvent_PartyCreate(t *testing.T) {
	ev, err := ParseClientEvent([]byte(`{"type":"party:create","name":"Sunday Ride"}`))
	require.NoError(t, err)
	create, ok := ev.(PartyCreate)
	require.True(t, ok)
	assert.Equal(t, "Sunday Ride", create.Name)
}

func TestParseClientEvent_PartyCreateWithoutName(t *testing.T) {
	ev, err := ParseClientEvent([]byte(`{"type":"party:create"}`))
	require.NoError(t, err)
	create, ok := ev.(PartyCreate)
	require.True(t, ok)
	assert.Empty(t, create.Name)
}

func TestParseClientEvent_PartyJoin(t *testing.T) {
	ev, err := ParseClientEvent([]byte(`{"type":"party:join","code":"042137"}`))
	require.NoError(t, err)
	join, ok := ev.(PartyJoin)
	require.True(t, ok)
	assert.Equal(t, "042137", join.Code)
}

func TestParseClientEvent_PartyJoinBadCode(t *testing.T) {
	cases := []string{
		`{"type":"party:join","code":"12345"}`,
		`{"type":"party:join","code":"1234567"}`,
		`{"type":"party:join","code":"12a456"}`,
		`{"type":"party:join"}`,
	}
	for _, raw := range cases {
		_, err := ParseClientEvent([]byte(raw))
		require.Error(t, err, raw)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr, raw)
	}
}

func TestParseClientEvent_PartyUpdate(t *testing.T) {
	raw := `{"type":"party:update","partyId":7,"location":{"latitude":48.2,"longitude":16.37,"speed":62.5,"heading":181}}`
	ev, err := ParseClientEvent([]byte(raw))
	require.NoError(t, err)
	update, ok := ev.(PartyUpdate)
	require.True(t, ok)
	assert.Equal(t, uint(7), update.PartyID)
	assert.InDelta(t, 48.2, update.Location.Latitude, 1e-9)
	assert.InDelta(t, 62.5, update.Location.Speed, 1e-9)
}

func TestParseClientEvent_PartyUpdateOutOfRange(t *testing.T) {
	raw := `{"type":"party:update","partyId":7,"location":{"latitude":91,"longitude":0,"speed":0,"heading":0}}`
	_, err := ParseClientEvent([]byte(raw))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestParseClientEvent_PartyUpdateMissingLocation(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{"type":"party:update","partyId":7}`))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestParseClientEvent_PartyMessage(t *testing.T) {
	ev, err := ParseClientEvent([]byte(`{"type":"party:message","partyId":3,"message":"fuel stop?"}`))
	require.NoError(t, err)
	msg, ok := ev.(PartyMessage)
	require.True(t, ok)
	assert.Equal(t, uint(3), msg.PartyID)
	assert.Equal(t, "fuel stop?", msg.Message)
}

func TestParseClientEvent_UnknownType(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{"type":"party:teleport","partyId":1}`))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reason, "party:teleport")
}

func TestParseClientEvent_MalformedJSON(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{not json`))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestParseClientEvent_MissingType(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{"partyId":1}`))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

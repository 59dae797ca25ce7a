package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisputeKeepsUnknownFields(t *testing.T) {
	raw := []byte(`{"arbitratorAddress":"0xAbC","disputeId":3,"appealDraws":[[1,2]],"description":"escrow","_id":"x1"}`)

	var d Dispute
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.Equal(t, uint64(3), d.DisputeID)
	assert.Equal(t, [][]uint64{{1, 2}}, d.AppealDraws)
	require.Contains(t, d.Extra, "description")
	require.Contains(t, d.Extra, "_id")

	out, err := json.Marshal(d)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "escrow", fields["description"])
	assert.Equal(t, "0xAbC", fields["arbitratorAddress"])
}

func TestFilterByArbitratorIgnoresCase(t *testing.T) {
	disputes := []Dispute{
		{ArbitratorAddress: "0xAAAA", DisputeID: 1},
		{ArbitratorAddress: "0xbbbb", DisputeID: 1},
		{ArbitratorAddress: "0xaaaa", DisputeID: 2},
	}

	got := FilterByArbitrator(disputes, "0xaAaA")
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].DisputeID)
	assert.Equal(t, uint64(2), got[1].DisputeID)
}

func TestProfileLookups(t *testing.T) {
	p := NewProfile("0x01")
	p.Sessions = map[string]uint64{"0xaaaa": 4}
	p.Disputes = append(p.Disputes, Dispute{ArbitratorAddress: "0xAAAA", DisputeID: 7})
	p.Notifications = append(p.Notifications, Notification{TxHash: "0xFF", LogIndex: 2})

	assert.Equal(t, uint64(4), p.SessionFor("0xAAAA"))
	assert.Equal(t, uint64(0), p.SessionFor("0xbbbb"))

	_, ok := p.FindDispute("0xaaaa", 7)
	assert.True(t, ok)
	_, ok = p.FindDispute("0xbbbb", 7)
	assert.False(t, ok)

	assert.True(t, p.HasNotification("0xff", 2))
	assert.False(t, p.HasNotification("0xff", 3))

	clone := p.Clone()
	clone.Disputes[0].DisputeID = 9
	assert.Equal(t, uint64(7), p.Disputes[0].DisputeID)
}

func TestNotificationTypeString(t *testing.T) {
	require.Equal(t, "CanActivate", NotificationCanActivate.String())
	require.Equal(t, "CanRepartition", NotificationCanRepartition.String())
	require.Equal(t, "notification(99)", NotificationType(99).String())
}

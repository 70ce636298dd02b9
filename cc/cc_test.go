package cc

import (
	"testing"

	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
	"github.com/stretchr/testify/require"
)

func TestManufacturerSpecificAdvanceQueryOnlyAtItsStage(t *testing.T) {
	m := NewManufacturerSpecific(5)

	_, applicable := m.AdvanceQuery(5, node.StageVersions)
	require.False(t, applicable)

	msgs, applicable := m.AdvanceQuery(5, node.StageManufacturerSpecific)
	require.True(t, applicable)
	require.Len(t, msgs, 1)

	m.HandleIncoming(manufacturerSpecificCommandReport, []uint8{0x00, 0x01, 0x00, 0x02, 0x00, 0x03})
	_, applicable = m.AdvanceQuery(5, node.StageManufacturerSpecific)
	require.False(t, applicable, "already received, should not re-request")

	manufacturerID, productType, productID, ok := m.Report()
	require.True(t, ok)
	require.EqualValues(t, 1, manufacturerID)
	require.EqualValues(t, 2, productType)
	require.EqualValues(t, 3, productID)
}

func TestManufacturerSpecificSerializeRoundTrip(t *testing.T) {
	m := NewManufacturerSpecific(5)
	m.HandleIncoming(manufacturerSpecificCommandReport, []uint8{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc})

	fields := m.Serialize()
	require.NotNil(t, fields)

	m2 := NewManufacturerSpecific(5)
	m2.Deserialize(fields)
	manufacturerID, productType, productID, ok := m2.Report()
	require.True(t, ok)
	require.EqualValues(t, 0x1234, manufacturerID)
	require.EqualValues(t, 0x5678, productType)
	require.EqualValues(t, 0x9abc, productID)
}

func TestBatteryLowSentinel(t *testing.T) {
	b := NewBattery(5)
	b.HandleIncoming(batteryCommandReport, []uint8{0xff})
	level, isLow, ok := b.Report()
	require.True(t, ok)
	require.True(t, isLow)
	require.EqualValues(t, 0, level)
}

func TestBasicHasNoQueryStage(t *testing.T) {
	b := NewBasic(5)
	_, applicable := b.AdvanceQuery(5, node.StageDynamic)
	require.False(t, applicable)
}

func TestWakeUpNotificationInvokesOnAwakeCallback(t *testing.T) {
	w := NewWakeUp(5)
	var woke uint8
	w.SetOnAwake(func(nodeID uint8) { woke = nodeID })

	require.False(t, w.IsAwake())
	w.HandleIncoming(zwmsg.WakeUpCommandNotification, nil)
	require.True(t, w.IsAwake())
	require.EqualValues(t, 5, woke)
}

func TestWakeUpIntervalReportDecodesBigEndian24Bit(t *testing.T) {
	w := NewWakeUp(5)
	w.HandleIncoming(zwmsg.WakeUpCommandIntervalReport, []uint8{0x00, 0x0e, 0x10, 0x01})
	seconds, ok := w.Interval()
	require.True(t, ok)
	require.EqualValues(t, 3600, seconds)
}

func TestWakeUpPollRequiredClearsOnRead(t *testing.T) {
	w := NewWakeUp(5)
	require.False(t, w.PollRequired())
	w.SetPollRequired(true)
	require.True(t, w.PollRequired())
	require.False(t, w.PollRequired(), "reading clears the flag")
}

func TestAssociationGroupingsThenMembers(t *testing.T) {
	a := NewAssociation(5)
	_, applicable := a.AdvanceQuery(5, node.StageAssociations)
	require.True(t, applicable)

	a.HandleIncoming(associationCommandGroupingsReport, []uint8{2})
	groups, ok := a.Groups()
	require.True(t, ok)
	require.EqualValues(t, 2, groups)

	a.HandleIncoming(associationCommandReport, []uint8{1, 5, 0, 3, 7})
	require.Equal(t, []uint8{3, 7}, a.Members(1))
}

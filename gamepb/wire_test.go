package gamepb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMessageEnvelopeRoundtrip(t *testing.T) {
	in := &Message{
		Meta: &Meta{
			ServiceName:  "gamepb.plantpb.PlantService",
			MethodName:   "GetAllLands",
			MessageType:  MessageTypeRequest,
			ClientSeq:    7,
			ServerSeq:    42,
			ErrorCode:    3,
			ErrorMessage: "等级不足",
		},
		Body: []byte{0x08, 0x01},
	}

	out := &Message{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	require.NotNil(t, out.Meta)
	assert.Equal(t, *in.Meta, *out.Meta)
	assert.Equal(t, in.Body, out.Body)
}

func TestZeroValuesOmitted(t *testing.T) {
	assert.Empty(t, (&Item{}).Marshal())
	assert.Empty(t, (&Meta{}).Marshal())

	// A frame without a meta field decodes to a nil Meta.
	out := &Message{}
	require.NoError(t, out.Unmarshal(appendBytes(nil, 2, []byte{0x01})))
	assert.Nil(t, out.Meta)
}

func TestLandInfoNestedPlant(t *testing.T) {
	in := &LandInfo{
		ID:           12,
		Unlocked:     true,
		Level:        2,
		CouldUpgrade: true,
		Plant: &PlantInfo{
			ID:           30001,
			DryNum:       1,
			WeedOwners:   []int64{1001, 1002},
			InsectOwners: []int64{2001},
			Stealable:    true,
			Phases: []*PlantPhaseInfo{
				{Phase: 1, BeginTime: 1700000000},
				{Phase: PhaseMature, BeginTime: 1700003600},
			},
		},
	}

	out := &LandInfo{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, out.Unlocked)
	require.NotNil(t, out.Plant)
	assert.Equal(t, in.Plant.WeedOwners, out.Plant.WeedOwners)
	assert.Equal(t, in.Plant.InsectOwners, out.Plant.InsectOwners)
	require.Len(t, out.Plant.Phases, 2)
	assert.Equal(t, PhaseMature, out.Plant.Phases[1].Phase)
}

func TestAllLandsReplyRoundtrip(t *testing.T) {
	in := &AllLandsReply{
		Lands: []*LandInfo{
			{ID: 1, Unlocked: true},
			{ID: 2},
		},
		OperationLimits: []*OperationLimit{
			{ID: OpSteal, DayTimes: 3, DayTimesLt: 30},
		},
	}

	out := &AllLandsReply{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	require.Len(t, out.Lands, 2)
	assert.True(t, out.Lands[0].Unlocked)
	assert.False(t, out.Lands[1].Unlocked)
	require.Len(t, out.OperationLimits, 1)
	assert.Equal(t, OpSteal, out.OperationLimits[0].ID)
	assert.Equal(t, int32(30), out.OperationLimits[0].DayTimesLt)
}

func TestHarvestRequestPacked(t *testing.T) {
	in := &HarvestRequest{LandIds: []int64{1, 2, 3}, HostGid: 555, IsAll: true}

	out := &HarvestRequest{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in.LandIds, out.LandIds)
	assert.Equal(t, in.HostGid, out.HostGid)
	assert.True(t, out.IsAll)
}

func TestRepeatedInt64AcceptsUnpacked(t *testing.T) {
	// Some server replies use unpacked encoding for repeated varints.
	var b []byte
	for _, v := range []int64{10, 20, 30} {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}

	out := &RemovePlantRequest{}
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, []int64{10, 20, 30}, out.LandIds)
}

func TestPlantRequestMapEntries(t *testing.T) {
	in := &PlantRequest{LandAndSeed: map[int64]int64{5: 30001, 9: 30002}}

	out := &PlantRequest{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in.LandAndSeed, out.LandAndSeed)
	assert.Empty(t, out.Items)
}

func TestPlantRequestItems(t *testing.T) {
	in := &PlantRequest{Items: []*PlantItem{{SeedID: 30001, LandIds: []int64{5, 9}}}}

	out := &PlantRequest{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(30001), out.Items[0].SeedID)
	assert.Equal(t, []int64{5, 9}, out.Items[0].LandIds)
	assert.Empty(t, out.LandAndSeed)
}

func TestEventMessageRoundtrip(t *testing.T) {
	in := &EventMessage{MessageType: "gamepb.userpb.KickOutNotify", Body: []byte{0x01}}

	out := &EventMessage{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in.MessageType, out.MessageType)
	assert.Equal(t, in.Body, out.Body)
}

func TestUnknownFieldsIgnored(t *testing.T) {
	b := (&Item{ID: 1, Count: 2}).Marshal()
	b = appendString(b, 99, "future field")

	out := &Item{}
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, int64(2), out.Count)
}

func TestTruncatedFrameFails(t *testing.T) {
	full := (&Meta{ServiceName: "svc", MethodName: "Method"}).Marshal()
	assert.Error(t, (&Meta{}).Unmarshal(full[:len(full)-2]))
}

package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/gamepb"
)

func newTestFriend(t *testing.T) (*FriendService, *fakeCaller) {
	t.Helper()
	caller := newFakeCaller()
	return NewFriendService(caller, newTestConfig(t)), caller
}

func TestAnalyzeFriendLands(t *testing.T) {
	f, _ := newTestFriend(t)
	const myGid = int64(777)
	now := time.Now().Unix()

	lands := []*gamepb.LandInfo{
		// Mature and stealable.
		{ID: 1, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID: 10230001, Stealable: true,
			Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseMature, BeginTime: now - 10}},
		}},
		// Mature but already stolen out.
		{ID: 2, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID:     10230001,
			Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseMature, BeginTime: now - 10}},
		}},
		// Growing with needs; my weed is already on it.
		{ID: 3, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID:           10230001,
			DryNum:       1,
			WeedOwners:   []int64{myGid},
			InsectOwners: []int64{1, 2},
			Phases:       []*gamepb.PlantPhaseInfo{{Phase: 2, BeginTime: now - 10}},
		}},
		// Clean growing land, open for sabotage.
		{ID: 4, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID:     10230001,
			Phases: []*gamepb.PlantPhaseInfo{{Phase: 2, BeginTime: now - 10}},
		}},
		// Dead and empty lands are skipped.
		{ID: 5, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID:     10230001,
			Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseDead, BeginTime: now - 10}},
		}},
		{ID: 6, Unlocked: true},
	}

	res := f.AnalyzeFriendLands(lands, myGid)
	assert.Equal(t, []int64{1}, res.Stealable)
	require.Len(t, res.StealableInfo, 1)
	assert.Equal(t, "白萝卜", res.StealableInfo[0].Name)

	assert.Equal(t, []int64{3}, res.NeedWater)
	assert.Equal(t, []int64{3}, res.NeedWeed)
	assert.Equal(t, []int64{3}, res.NeedBug)

	// Land 3: my weed blocks another, two bugs block more bugs.
	assert.Equal(t, []int64{4}, res.CanPutWeed)
	assert.Equal(t, []int64{4}, res.CanPutBug)
}

func TestOperationQuotaTable(t *testing.T) {
	f, _ := newTestFriend(t)

	f.UpdateOperationLimits([]*gamepb.OperationLimit{
		{ID: gamepb.OpSteal, DayTimes: 28, DayTimesLt: 30, DayExpTimes: 5, DayExTimesLt: 5},
		{ID: gamepb.OpWater, DayTimes: 10, DayTimesLt: 10},
		{ID: 0},
	})

	assert.True(t, f.CanOperate(gamepb.OpSteal))
	assert.Equal(t, int32(2), f.RemainingTimes(gamepb.OpSteal))
	assert.False(t, f.CanGetExp(gamepb.OpSteal))

	assert.False(t, f.CanOperate(gamepb.OpWater))
	assert.Equal(t, int32(0), f.RemainingTimes(gamepb.OpWater))

	// Unknown rows: operation allowed, no exp, unlimited display.
	assert.True(t, f.CanOperate(gamepb.OpWeed))
	assert.False(t, f.CanGetExp(gamepb.OpWeed))
	assert.Equal(t, int32(999), f.RemainingTimes(gamepb.OpWeed))

	quotas := f.OperationLimits()
	require.Contains(t, quotas, gamepb.OpSteal)
	assert.Equal(t, "偷菜", quotas[gamepb.OpSteal].Name)
	assert.Equal(t, int32(2), quotas[gamepb.OpSteal].Remaining)
	assert.NotContains(t, quotas, int64(0))
}

func TestFriendsList(t *testing.T) {
	f, caller := newTestFriend(t)
	const myGid = int64(100)

	caller.reply(FriendServiceName, "GetAll", (&gamepb.GetAllReply{
		GameFriends: []*gamepb.GameFriend{
			{Gid: myGid, Name: "me"},
			{Gid: 200, Name: "bob", Plant: &gamepb.FriendPlantBrief{StealPlantNum: 2, DryNum: 1}},
			{Gid: 300, Name: "zed", Remark: "alice"},
			{Gid: 400, Name: "小小农夫"},
			{Gid: 0, Name: "ghost"},
		},
	}).Marshal())

	rows := f.FriendsList(context.Background(), myGid)
	require.Len(t, rows, 2)
	// Remark beats name, sort is by display name.
	assert.Equal(t, "alice", rows[0].Name)
	assert.Equal(t, int64(300), rows[0].Gid)
	assert.Equal(t, "bob", rows[1].Name)
	assert.Equal(t, int32(2), rows[1].Plant.StealNum)
}

func TestFriendsListDegradesOnError(t *testing.T) {
	f, caller := newTestFriend(t)
	caller.fail(FriendServiceName, "GetAll", errors.New("gate down"))
	assert.Empty(t, f.FriendsList(context.Background(), 1))
}

func TestDoFriendOperationSteal(t *testing.T) {
	f, caller := newTestFriend(t)
	const friendGid, myGid = int64(555), int64(100)
	now := time.Now().Unix()

	caller.reply(VisitServiceName, "Enter", (&gamepb.EnterReply{
		Lands: []*gamepb.LandInfo{
			{ID: 1, Unlocked: true, Plant: &gamepb.PlantInfo{
				ID: 10230001, Stealable: true,
				Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseMature, BeginTime: now - 10}},
			}},
			{ID: 2, Unlocked: true, Plant: &gamepb.PlantInfo{
				ID: 10230001, Stealable: true,
				Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseMature, BeginTime: now - 10}},
			}},
		},
	}).Marshal())
	caller.reply(VisitServiceName, "Leave", nil)
	caller.reply(PlantServiceName, "CheckCanOperate", (&gamepb.CheckCanOperateReply{
		CanOperate: true, CanStealNum: 1,
	}).Marshal())
	caller.reply(PlantServiceName, "Harvest", (&gamepb.HarvestReply{
		OperationLimits: []*gamepb.OperationLimit{{ID: gamepb.OpSteal, DayTimes: 29, DayTimesLt: 30}},
	}).Marshal())

	sold := false
	res := f.DoFriendOperation(context.Background(), friendGid, myGid, "steal", func() { sold = true })
	require.True(t, res.OK)
	assert.Equal(t, 1, res.Count)
	assert.True(t, sold)

	// The gate-side cap trimmed the target list to one land.
	req := &gamepb.HarvestRequest{}
	require.NoError(t, req.Unmarshal(caller.lastBody(PlantServiceName, "Harvest")))
	assert.Equal(t, []int64{1}, req.LandIds)
	assert.Equal(t, friendGid, req.HostGid)
	assert.True(t, req.IsAll)

	// Quota table was merged from the reply.
	assert.Equal(t, int32(1), f.RemainingTimes(gamepb.OpSteal))
	assert.Equal(t, 1, caller.callCount(VisitServiceName, "Leave"))
}

func TestDoFriendOperationStealQuotaExhausted(t *testing.T) {
	f, caller := newTestFriend(t)
	now := time.Now().Unix()

	caller.reply(VisitServiceName, "Enter", (&gamepb.EnterReply{
		Lands: []*gamepb.LandInfo{
			{ID: 1, Unlocked: true, Plant: &gamepb.PlantInfo{
				ID: 10230001, Stealable: true,
				Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseMature, BeginTime: now - 10}},
			}},
		},
	}).Marshal())
	caller.reply(VisitServiceName, "Leave", nil)
	caller.reply(PlantServiceName, "CheckCanOperate", (&gamepb.CheckCanOperateReply{}).Marshal())

	res := f.DoFriendOperation(context.Background(), 555, 100, "steal", nil)
	require.True(t, res.OK)
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, "今日偷菜次数已用完", res.Message)
	assert.Equal(t, 0, caller.callCount(PlantServiceName, "Harvest"))
}

func TestDoFriendOperationUnknownType(t *testing.T) {
	f, caller := newTestFriend(t)
	caller.reply(VisitServiceName, "Enter", (&gamepb.EnterReply{}).Marshal())
	caller.reply(VisitServiceName, "Leave", nil)

	res := f.DoFriendOperation(context.Background(), 555, 100, "dance", nil)
	assert.False(t, res.OK)
	assert.Equal(t, "未知操作类型", res.Message)
}

func TestRunBatchWithFallback(t *testing.T) {
	f, _ := newTestFriend(t)

	// Whole batch works: one call, full count.
	var batches [][]int64
	count := f.runBatchWithFallback(context.Background(), []int64{1, 2, 0, 3}, func(ids []int64) error {
		batches = append(batches, ids)
		return nil
	})
	assert.Equal(t, 3, count)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{1, 2, 3}, batches[0])

	// Batch rejected: retried land by land, failures skipped.
	batches = nil
	count = f.runBatchWithFallback(context.Background(), []int64{1, 2}, func(ids []int64) error {
		batches = append(batches, ids)
		if len(ids) > 1 || ids[0] == 2 {
			return errors.New("rejected")
		}
		return nil
	})
	assert.Equal(t, 1, count)
	assert.Len(t, batches, 3)
}

func TestCheckCanOperateDegradesToAllow(t *testing.T) {
	f, caller := newTestFriend(t)
	caller.fail(PlantServiceName, "CheckCanOperate", errors.New("gate down"))

	ok, num := f.CheckCanOperate(context.Background(), 555, gamepb.OpSteal)
	assert.True(t, ok)
	assert.Equal(t, int32(0), num)
}

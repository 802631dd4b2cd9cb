package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/gamepb"
)

func TestFormatTask(t *testing.T) {
	row := FormatTask(&gamepb.Task{
		ID:            7,
		Desc:          "收获10次",
		Progress:      10,
		TotalProgress: 10,
		IsUnlocked:    true,
		ShareMultiple: 2,
		Rewards:       []*gamepb.Item{{ID: gamepb.ItemExp, Count: 50}},
	})
	assert.Equal(t, "收获10次", row.Desc)
	assert.True(t, row.CanClaim)
	require.Len(t, row.Rewards, 1)
	assert.Equal(t, int64(50), row.Rewards[0].Count)

	// No description falls back to the id.
	row = FormatTask(&gamepb.Task{ID: 9})
	assert.Equal(t, "任务#9", row.Desc)
	assert.False(t, row.CanClaim)
}

func TestTaskClaimable(t *testing.T) {
	assert.False(t, taskClaimable(&gamepb.Task{IsUnlocked: true, Progress: 5, TotalProgress: 10}))
	assert.False(t, taskClaimable(&gamepb.Task{IsUnlocked: true, IsClaimed: true, Progress: 10, TotalProgress: 10}))
	assert.False(t, taskClaimable(&gamepb.Task{Progress: 10, TotalProgress: 10}))
	assert.False(t, taskClaimable(&gamepb.Task{IsUnlocked: true, Progress: 0, TotalProgress: 0}))
	assert.True(t, taskClaimable(&gamepb.Task{IsUnlocked: true, Progress: 12, TotalProgress: 10}))
}

func TestAllTasksDegradesOnError(t *testing.T) {
	caller := newFakeCaller()
	caller.fail(TaskServiceName, "TaskInfo", errors.New("gate down"))

	lists := NewTaskService(caller).AllTasks(context.Background())
	assert.Empty(t, lists.Daily)
	assert.Empty(t, lists.Growth)
	assert.Empty(t, lists.Main)
}

func TestCheckAndClaim(t *testing.T) {
	caller := newFakeCaller()
	svc := NewTaskService(caller)

	caller.reply(TaskServiceName, "TaskInfo", (&gamepb.TaskInfoReply{
		TaskInfo: &gamepb.TaskInfo{
			GrowthTasks: []*gamepb.Task{
				{ID: 1, IsUnlocked: true, Progress: 10, TotalProgress: 10, ShareMultiple: 2},
			},
			DailyTasks: []*gamepb.Task{
				{ID: 2, IsUnlocked: true, Progress: 5, TotalProgress: 5},
				{ID: 3, IsUnlocked: true, Progress: 1, TotalProgress: 5},
			},
			Tasks: []*gamepb.Task{
				{ID: 4, IsUnlocked: true, IsClaimed: true, Progress: 5, TotalProgress: 5},
			},
			Actives: []*gamepb.Active{
				{Type: 1, Rewards: []*gamepb.ActiveReward{
					{PointID: 11, Status: gamepb.ActiveRewardDone},
					{PointID: 12, Status: 1},
				}},
				{Type: 2, Rewards: []*gamepb.ActiveReward{{PointID: 21, Status: 1}}},
			},
		},
	}).Marshal())
	caller.reply(TaskServiceName, "ClaimTaskReward", (&gamepb.ClaimTaskRewardReply{
		Items: []*gamepb.Item{{ID: gamepb.ItemExp, Count: 5}},
	}).Marshal())
	caller.reply(TaskServiceName, "ClaimDailyReward", (&gamepb.ClaimDailyRewardReply{
		Items: []*gamepb.Item{{ID: gamepb.ItemGoldReward, Count: 100}},
	}).Marshal())

	summary, err := svc.CheckAndClaim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TaskClaimed)
	assert.Equal(t, 1, summary.ActiveClaimed)
	assert.Len(t, summary.TaskItems, 2)
	require.Len(t, summary.ActiveItems, 1)
	assert.Equal(t, int64(100), summary.ActiveItems[0].Count)

	// Growth before daily, shared claim when the multiplier pays.
	bodies := caller.bodies[TaskServiceName+".ClaimTaskReward"]
	require.Len(t, bodies, 2)
	first := &gamepb.ClaimTaskRewardRequest{}
	require.NoError(t, first.Unmarshal(bodies[0]))
	assert.Equal(t, int64(1), first.ID)
	assert.True(t, first.DoShared)
	second := &gamepb.ClaimTaskRewardRequest{}
	require.NoError(t, second.Unmarshal(bodies[1]))
	assert.Equal(t, int64(2), second.ID)
	assert.False(t, second.DoShared)

	daily := &gamepb.ClaimDailyRewardRequest{}
	require.NoError(t, daily.Unmarshal(caller.lastBody(TaskServiceName, "ClaimDailyReward")))
	assert.Equal(t, int32(1), daily.Type)
	assert.Equal(t, []int64{11}, daily.PointIds)
	assert.Equal(t, 1, caller.callCount(TaskServiceName, "ClaimDailyReward"))
}

func TestCheckAndClaimSkipsFailedClaims(t *testing.T) {
	caller := newFakeCaller()
	svc := NewTaskService(caller)

	caller.reply(TaskServiceName, "TaskInfo", (&gamepb.TaskInfoReply{
		TaskInfo: &gamepb.TaskInfo{
			DailyTasks: []*gamepb.Task{
				{ID: 1, IsUnlocked: true, Progress: 5, TotalProgress: 5},
				{ID: 2, IsUnlocked: true, Progress: 5, TotalProgress: 5},
			},
		},
	}).Marshal())
	caller.on(TaskServiceName, "ClaimTaskReward", func(body []byte) ([]byte, error) {
		req := &gamepb.ClaimTaskRewardRequest{}
		if err := req.Unmarshal(body); err != nil {
			return nil, err
		}
		if req.ID == 1 {
			return nil, errors.New("already claimed elsewhere")
		}
		return (&gamepb.ClaimTaskRewardReply{}).Marshal(), nil
	})

	summary, err := svc.CheckAndClaim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TaskClaimed)
}

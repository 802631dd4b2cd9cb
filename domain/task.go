package domain

import (
	"context"
	"fmt"

	"qq-farm-runtime/gamepb"
)

// TaskRow is one formatted task for display.
type TaskRow struct {
	ID            int64        `json:"id"`
	Desc          string       `json:"desc"`
	Progress      int64        `json:"progress"`
	TotalProgress int64        `json:"totalProgress"`
	IsClaimed     bool         `json:"isClaimed"`
	IsUnlocked    bool         `json:"isUnlocked"`
	ShareMultiple int32        `json:"shareMultiple"`
	Rewards       []RewardItem `json:"rewards"`
	CanClaim      bool         `json:"canClaim"`
}

type RewardItem struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

// TaskLists groups tasks by track.
type TaskLists struct {
	Daily  []*TaskRow `json:"daily"`
	Growth []*TaskRow `json:"growth"`
	Main   []*TaskRow `json:"main"`
}

// ClaimSummary reports one claim pass.
type ClaimSummary struct {
	TaskClaimed   int          `json:"taskClaimed"`
	ActiveClaimed int          `json:"activeClaimed"`
	TaskItems     []RewardItem `json:"taskItems"`
	ActiveItems   []RewardItem `json:"activeItems"`
}

// TaskService wraps the task gate service: listing and reward claims.
type TaskService struct {
	caller Caller
}

func NewTaskService(caller Caller) *TaskService {
	return &TaskService{caller: caller}
}

// TaskInfo fetches the raw task tree.
func (t *TaskService) TaskInfo(ctx context.Context) (*gamepb.TaskInfoReply, error) {
	req := &gamepb.TaskInfoRequest{}
	body, err := t.caller.Call(ctx, TaskServiceName, "TaskInfo", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.TaskInfoReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// ClaimTaskReward claims one finished task, optionally with the shared
// multiplier.
func (t *TaskService) ClaimTaskReward(ctx context.Context, taskID int64, doShared bool) (*gamepb.ClaimTaskRewardReply, error) {
	req := &gamepb.ClaimTaskRewardRequest{ID: taskID, DoShared: doShared}
	body, err := t.caller.Call(ctx, TaskServiceName, "ClaimTaskReward", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.ClaimTaskRewardReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// ClaimDailyReward claims finished activity reward points.
func (t *TaskService) ClaimDailyReward(ctx context.Context, activeType int32, pointIds []int64) (*gamepb.ClaimDailyRewardReply, error) {
	req := &gamepb.ClaimDailyRewardRequest{Type: activeType, PointIds: positive(pointIds)}
	body, err := t.caller.Call(ctx, TaskServiceName, "ClaimDailyReward", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.ClaimDailyRewardReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// AllTasks fetches and formats every task track. Failures degrade to
// empty lists.
func (t *TaskService) AllTasks(ctx context.Context) *TaskLists {
	lists := &TaskLists{Daily: []*TaskRow{}, Growth: []*TaskRow{}, Main: []*TaskRow{}}
	reply, err := t.TaskInfo(ctx)
	if err != nil || reply.TaskInfo == nil {
		return lists
	}
	for _, task := range reply.TaskInfo.DailyTasks {
		lists.Daily = append(lists.Daily, FormatTask(task))
	}
	for _, task := range reply.TaskInfo.GrowthTasks {
		lists.Growth = append(lists.Growth, FormatTask(task))
	}
	for _, task := range reply.TaskInfo.Tasks {
		lists.Main = append(lists.Main, FormatTask(task))
	}
	return lists
}

// FormatTask renders one task row. A task is claimable when unlocked,
// unclaimed and its progress has reached a positive total.
func FormatTask(task *gamepb.Task) *TaskRow {
	desc := task.Desc
	if desc == "" {
		desc = fmt.Sprintf("任务#%d", task.ID)
	}
	rewards := make([]RewardItem, 0, len(task.Rewards))
	for _, item := range task.Rewards {
		rewards = append(rewards, RewardItem{ID: item.ID, Count: item.Count})
	}
	return &TaskRow{
		ID:            task.ID,
		Desc:          desc,
		Progress:      task.Progress,
		TotalProgress: task.TotalProgress,
		IsClaimed:     task.IsClaimed,
		IsUnlocked:    task.IsUnlocked,
		ShareMultiple: task.ShareMultiple,
		Rewards:       rewards,
		CanClaim:      taskClaimable(task),
	}
}

func taskClaimable(task *gamepb.Task) bool {
	return task.IsUnlocked && !task.IsClaimed && task.TotalProgress > 0 && task.Progress >= task.TotalProgress
}

// CheckAndClaim claims every finished task and activity point. Shared
// claiming applies when the task advertises a multiplier above 1.
// Failed claims are skipped; claims are paced 200ms apart.
func (t *TaskService) CheckAndClaim(ctx context.Context) (*ClaimSummary, error) {
	result := &ClaimSummary{TaskItems: []RewardItem{}, ActiveItems: []RewardItem{}}
	reply, err := t.TaskInfo(ctx)
	if err != nil {
		return result, err
	}
	if reply.TaskInfo == nil {
		return result, nil
	}
	info := reply.TaskInfo

	var claimable []*gamepb.Task
	for _, rows := range [][]*gamepb.Task{info.GrowthTasks, info.DailyTasks, info.Tasks} {
		for _, task := range rows {
			if taskClaimable(task) {
				claimable = append(claimable, task)
			}
		}
	}
	for _, task := range claimable {
		shared := task.ShareMultiple > 1
		claimed, err := t.ClaimTaskReward(ctx, task.ID, shared)
		if err != nil {
			continue
		}
		result.TaskClaimed++
		for _, item := range claimed.Items {
			result.TaskItems = append(result.TaskItems, RewardItem{ID: item.ID, Count: item.Count})
		}
		if !sleepCtx(ctx, opDelay) {
			return result, nil
		}
	}

	for _, active := range info.Actives {
		var pointIds []int64
		for _, reward := range active.Rewards {
			if reward.Status == gamepb.ActiveRewardDone && reward.PointID > 0 {
				pointIds = append(pointIds, reward.PointID)
			}
		}
		if len(pointIds) == 0 {
			continue
		}
		claimed, err := t.ClaimDailyReward(ctx, active.Type, pointIds)
		if err != nil {
			continue
		}
		result.ActiveClaimed += len(pointIds)
		for _, item := range claimed.Items {
			result.ActiveItems = append(result.ActiveItems, RewardItem{ID: item.ID, Count: item.Count})
		}
		if !sleepCtx(ctx, opDelay) {
			return result, nil
		}
	}
	return result, nil
}

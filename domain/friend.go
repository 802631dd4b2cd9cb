package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"qq-farm-runtime/gameconf"
	"qq-farm-runtime/gamepb"
)

// opNames maps friend operation ids to display names.
var opNames = map[int64]string{
	10001: "收获",
	10002: "铲除",
	10003: "放草",
	10004: "放虫",
	10005: "除草",
	10006: "除虫",
	10007: "浇水",
	10008: "偷菜",
}

// FriendOpResult is the outcome of one friend-farm operation.
type FriendOpResult struct {
	OK        bool   `json:"ok"`
	OpType    string `json:"opType"`
	Count     int    `json:"count"`
	BugCount  int    `json:"bugCount,omitempty"`
	WeedCount int    `json:"weedCount,omitempty"`
	Message   string `json:"message"`
}

// OperationQuota is one operation's daily usage for display.
type OperationQuota struct {
	Name             string `json:"name"`
	DayTimes         int32  `json:"dayTimes"`
	DayTimesLimit    int32  `json:"dayTimesLimit"`
	DayExpTimes      int32  `json:"dayExpTimes"`
	DayExpTimesLimit int32  `json:"dayExpTimesLimit"`
	Remaining        int32  `json:"remaining"`
}

// FriendBrief is one friend row with actionable counts.
type FriendBrief struct {
	Gid   int64            `json:"gid"`
	Name  string           `json:"name"`
	Plant FriendPlantStats `json:"plant"`
}

type FriendPlantStats struct {
	StealNum  int32 `json:"stealNum"`
	DryNum    int32 `json:"dryNum"`
	WeedNum   int32 `json:"weedNum"`
	InsectNum int32 `json:"insectNum"`
}

// FriendLandBuckets is the per-visit analysis of a friend's farm.
type FriendLandBuckets struct {
	Stealable     []int64          `json:"stealable"`
	StealableInfo []*StealableInfo `json:"stealableInfo"`
	NeedWater     []int64          `json:"needWater"`
	NeedWeed      []int64          `json:"needWeed"`
	NeedBug       []int64          `json:"needBug"`
	CanPutWeed    []int64          `json:"canPutWeed"`
	CanPutBug     []int64          `json:"canPutBug"`
}

type StealableInfo struct {
	LandID  int64  `json:"landId"`
	PlantID int64  `json:"plantId"`
	Name    string `json:"name"`
}

// npcFarmerName is the built-in helper account filtered from listings.
const npcFarmerName = "小小农夫"

// FriendService wraps the friend, visit and cross-farm plant RPCs, and
// tracks the daily operation-quota table reported by the gate. The
// table resets when the local date changes.
type FriendService struct {
	caller Caller
	config *gameconf.Store

	mu           sync.Mutex
	limits       map[int64]*gamepb.OperationLimit
	lastResetDay string
}

func NewFriendService(caller Caller, config *gameconf.Store) *FriendService {
	return &FriendService{
		caller: caller,
		config: config,
		limits: make(map[int64]*gamepb.OperationLimit),
	}
}

// GetAllFriends fetches the raw friend roster.
func (f *FriendService) GetAllFriends(ctx context.Context) (*gamepb.GetAllReply, error) {
	req := &gamepb.GetAllRequest{}
	body, err := f.caller.Call(ctx, FriendServiceName, "GetAll", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.GetAllReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetApplications fetches pending friend requests.
func (f *FriendService) GetApplications(ctx context.Context) (*gamepb.GetApplicationsReply, error) {
	req := &gamepb.GetApplicationsRequest{}
	body, err := f.caller.Call(ctx, FriendServiceName, "GetApplications", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.GetApplicationsReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// AcceptFriends accepts the given requesters.
func (f *FriendService) AcceptFriends(ctx context.Context, gids []int64) error {
	valid := make([]int64, 0, len(gids))
	for _, gid := range gids {
		if gid > 0 {
			valid = append(valid, gid)
		}
	}
	req := &gamepb.AcceptFriendsRequest{FriendGids: valid}
	_, err := f.caller.Call(ctx, FriendServiceName, "AcceptFriends", req.Marshal())
	return err
}

// EnterFriendFarm starts a visit and returns the friend's lands.
func (f *FriendService) EnterFriendFarm(ctx context.Context, friendGid int64) (*gamepb.EnterReply, error) {
	req := &gamepb.EnterRequest{HostGid: friendGid, Reason: gamepb.EnterReasonFriend}
	body, err := f.caller.Call(ctx, VisitServiceName, "Enter", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.EnterReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// LeaveFriendFarm ends a visit. Failures are swallowed; the server
// also times visits out.
func (f *FriendService) LeaveFriendFarm(ctx context.Context, friendGid int64) {
	req := &gamepb.LeaveRequest{HostGid: friendGid}
	_, _ = f.caller.Call(ctx, VisitServiceName, "Leave", req.Marshal())
}

// HelpWater waters the friend's dry lands.
func (f *FriendService) HelpWater(ctx context.Context, friendGid int64, landIds []int64) error {
	return f.helpBatch(ctx, "WaterLand", friendGid, landIds)
}

// HelpWeed weeds the friend's lands.
func (f *FriendService) HelpWeed(ctx context.Context, friendGid int64, landIds []int64) error {
	return f.helpBatch(ctx, "WeedOut", friendGid, landIds)
}

// HelpBug de-bugs the friend's lands.
func (f *FriendService) HelpBug(ctx context.Context, friendGid int64, landIds []int64) error {
	return f.helpBatch(ctx, "Insecticide", friendGid, landIds)
}

func (f *FriendService) helpBatch(ctx context.Context, method string, friendGid int64, landIds []int64) error {
	req := &gamepb.WaterLandRequest{LandIds: positive(landIds), HostGid: friendGid}
	body, err := f.caller.Call(ctx, PlantServiceName, method, req.Marshal())
	if err != nil {
		return err
	}
	reply := &gamepb.WaterLandReply{}
	if err := reply.Unmarshal(body); err != nil {
		return err
	}
	f.UpdateOperationLimits(reply.OperationLimits)
	return nil
}

// StealHarvest harvests stealable crops on the friend's lands.
func (f *FriendService) StealHarvest(ctx context.Context, friendGid int64, landIds []int64) error {
	req := &gamepb.HarvestRequest{LandIds: positive(landIds), HostGid: friendGid, IsAll: true}
	body, err := f.caller.Call(ctx, PlantServiceName, "Harvest", req.Marshal())
	if err != nil {
		return err
	}
	reply := &gamepb.HarvestReply{}
	if err := reply.Unmarshal(body); err != nil {
		return err
	}
	f.UpdateOperationLimits(reply.OperationLimits)
	return nil
}

// PutInsects drops bugs on the friend's lands, one request per land.
// Returns how many landed.
func (f *FriendService) PutInsects(ctx context.Context, friendGid int64, landIds []int64) int {
	return f.putBatch(ctx, "PutInsects", friendGid, landIds)
}

// PutWeeds drops weeds on the friend's lands, one request per land.
func (f *FriendService) PutWeeds(ctx context.Context, friendGid int64, landIds []int64) int {
	return f.putBatch(ctx, "PutWeeds", friendGid, landIds)
}

func (f *FriendService) putBatch(ctx context.Context, method string, friendGid int64, landIds []int64) int {
	ok := 0
	for _, landID := range landIds {
		req := &gamepb.PutInsectsRequest{HostGid: friendGid, LandIds: []int64{landID}}
		body, err := f.caller.Call(ctx, PlantServiceName, method, req.Marshal())
		if err == nil {
			reply := &gamepb.PutInsectsReply{}
			if reply.Unmarshal(body) == nil {
				f.UpdateOperationLimits(reply.OperationLimits)
			}
			ok++
		}
		if !sleepCtx(ctx, 100*time.Millisecond) {
			break
		}
	}
	return ok
}

// CheckCanOperate asks the gate whether an operation still has quota.
// RPC failures err on the side of allowing, matching client behavior.
func (f *FriendService) CheckCanOperate(ctx context.Context, friendGid, operationID int64) (bool, int32) {
	req := &gamepb.CheckCanOperateRequest{HostGid: friendGid, OperationID: operationID}
	body, err := f.caller.Call(ctx, PlantServiceName, "CheckCanOperate", req.Marshal())
	if err != nil {
		return true, 0
	}
	reply := &gamepb.CheckCanOperateReply{}
	if err := reply.Unmarshal(body); err != nil {
		return true, 0
	}
	return reply.CanOperate, reply.CanStealNum
}

// UpdateOperationLimits merges a quota table from any reply.
func (f *FriendService) UpdateOperationLimits(limits []*gamepb.OperationLimit) {
	if len(limits) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkDailyResetLocked()
	for _, limit := range limits {
		if limit.ID <= 0 {
			continue
		}
		f.limits[limit.ID] = limit
	}
}

// OperationLimits snapshots the quota table for display.
func (f *FriendService) OperationLimits() map[int64]*OperationQuota {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkDailyResetLocked()
	out := make(map[int64]*OperationQuota, len(f.limits))
	for opID, row := range f.limits {
		name, ok := opNames[opID]
		if !ok {
			name = fmt.Sprintf("#%d", opID)
		}
		out[opID] = &OperationQuota{
			Name:             name,
			DayTimes:         row.DayTimes,
			DayTimesLimit:    row.DayTimesLt,
			DayExpTimes:      row.DayExpTimes,
			DayExpTimesLimit: row.DayExTimesLt,
			Remaining:        remainingTimes(row),
		}
	}
	return out
}

// CanGetExp reports whether the operation still yields exp today.
// Unknown operations yield no exp until the gate reports a row.
func (f *FriendService) CanGetExp(operationID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkDailyResetLocked()
	row, ok := f.limits[operationID]
	if !ok {
		return false
	}
	if row.DayExTimesLt <= 0 {
		return true
	}
	return row.DayExpTimes < row.DayExTimesLt
}

// CanOperate reports whether the operation has daily quota left.
// Unknown operations are allowed.
func (f *FriendService) CanOperate(operationID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkDailyResetLocked()
	row, ok := f.limits[operationID]
	if !ok {
		return true
	}
	if row.DayTimesLt <= 0 {
		return true
	}
	return row.DayTimes < row.DayTimesLt
}

// RemainingTimes returns the remaining daily uses, 999 when unlimited
// or unknown.
func (f *FriendService) RemainingTimes(operationID int64) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkDailyResetLocked()
	row, ok := f.limits[operationID]
	if !ok {
		return 999
	}
	return remainingTimes(row)
}

func remainingTimes(row *gamepb.OperationLimit) int32 {
	if row.DayTimesLt <= 0 {
		return 999
	}
	if left := row.DayTimesLt - row.DayTimes; left > 0 {
		return left
	}
	return 0
}

func (f *FriendService) checkDailyResetLocked() {
	day := time.Now().Format("2006-01-02")
	if day != f.lastResetDay {
		f.limits = make(map[int64]*gamepb.OperationLimit)
		f.lastResetDay = day
	}
}

// AnalyzeFriendLands buckets a friend's lands by possible actions.
// Sabotage targets exclude lands where we already placed weeds/bugs or
// two owners exist.
func (f *FriendService) AnalyzeFriendLands(lands []*gamepb.LandInfo, myGid int64) *FriendLandBuckets {
	res := &FriendLandBuckets{}
	nowSec := time.Now().Unix()

	for _, land := range lands {
		if land.Plant == nil || len(land.Plant.Phases) == 0 {
			continue
		}
		plant := land.Plant
		phase := currentPhase(plant, nowSec)
		var phaseVal int32
		if phase != nil {
			phaseVal = phase.Phase
		}

		if phaseVal == gamepb.PhaseMature {
			if plant.Stealable {
				res.Stealable = append(res.Stealable, land.ID)
				res.StealableInfo = append(res.StealableInfo, &StealableInfo{
					LandID:  land.ID,
					PlantID: plant.ID,
					Name:    f.config.PlantName(plant.ID),
				})
			}
			continue
		}
		if phaseVal == gamepb.PhaseDead {
			continue
		}

		if plant.DryNum > 0 {
			res.NeedWater = append(res.NeedWater, land.ID)
		}
		if len(plant.WeedOwners) > 0 {
			res.NeedWeed = append(res.NeedWeed, land.ID)
		}
		if len(plant.InsectOwners) > 0 {
			res.NeedBug = append(res.NeedBug, land.ID)
		}

		iPutWeed := containsGid(plant.WeedOwners, myGid)
		iPutBug := containsGid(plant.InsectOwners, myGid)
		if len(plant.WeedOwners) < 2 && !iPutWeed {
			res.CanPutWeed = append(res.CanPutWeed, land.ID)
		}
		if len(plant.InsectOwners) < 2 && !iPutBug {
			res.CanPutBug = append(res.CanPutBug, land.ID)
		}
	}
	return res
}

// FriendsList fetches and filters the roster: drops self and the NPC
// farmer, prefers remarks over names, sorts by (name, gid). RPC errors
// degrade to an empty list.
func (f *FriendService) FriendsList(ctx context.Context, myGid int64) []*FriendBrief {
	reply, err := f.GetAllFriends(ctx)
	if err != nil {
		return nil
	}
	rows := make([]*FriendBrief, 0, len(reply.GameFriends))
	for _, friend := range reply.GameFriends {
		if friend.Gid <= 0 || friend.Gid == myGid {
			continue
		}
		name := friend.Remark
		if name == "" {
			name = friend.Name
		}
		if name == "" {
			name = fmt.Sprintf("GID:%d", friend.Gid)
		}
		if name == npcFarmerName {
			continue
		}
		row := &FriendBrief{Gid: friend.Gid, Name: name}
		if friend.Plant != nil {
			row.Plant = FriendPlantStats{
				StealNum:  friend.Plant.StealPlantNum,
				DryNum:    friend.Plant.DryNum,
				WeedNum:   friend.Plant.WeedNum,
				InsectNum: friend.Plant.InsectNum,
			}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Gid < rows[j].Gid
	})
	return rows
}

// FriendLandsDetail visits a friend and renders their farm. The visit
// is always closed, even on analysis errors.
func (f *FriendService) FriendLandsDetail(ctx context.Context, friendGid, myGid int64) (*LandsView, *FriendLandBuckets, error) {
	enter, err := f.EnterFriendFarm(ctx, friendGid)
	if err != nil {
		return nil, nil, err
	}
	defer f.LeaveFriendFarm(ctx, friendGid)

	analyzed := f.AnalyzeFriendLands(enter.Lands, myGid)
	nowSec := time.Now().Unix()
	rows := make([]*LandDetail, 0, len(enter.Lands))
	for _, land := range enter.Lands {
		if !land.Unlocked {
			rows = append(rows, &LandDetail{
				ID:        land.ID,
				Status:    LandLocked,
				PhaseName: "未解锁",
				Level:     land.Level,
			})
			continue
		}
		if land.Plant == nil || len(land.Plant.Phases) == 0 {
			rows = append(rows, &LandDetail{
				ID:        land.ID,
				Unlocked:  true,
				Status:    LandEmpty,
				PhaseName: "空地",
				Level:     land.Level,
			})
			continue
		}
		plant := land.Plant
		phase := currentPhase(plant, nowSec)
		var phaseVal int32
		if phase != nil {
			phaseVal = phase.Phase
		}
		phaseName, ok := phaseNames[phaseVal]
		if !ok {
			phaseName = phaseNames[0]
		}
		var status string
		switch phaseVal {
		case gamepb.PhaseMature:
			if plant.Stealable {
				status = "stealable"
			} else {
				status = "harvested"
			}
		case gamepb.PhaseDead:
			status = LandDead
		default:
			status = LandGrowing
		}
		rows = append(rows, &LandDetail{
			ID:          land.ID,
			Unlocked:    true,
			Status:      status,
			PlantName:   f.config.PlantName(plant.ID),
			PhaseName:   phaseName,
			Level:       land.Level,
			MatureInSec: matureLeftSec(plant, nowSec),
			NeedWater:   plant.DryNum > 0,
			NeedWeed:    len(plant.WeedOwners) > 0,
			NeedBug:     len(plant.InsectOwners) > 0,
		})
	}
	return &LandsView{Lands: rows}, analyzed, nil
}

// DoFriendOperation visits a friend and runs one operation: steal,
// water, weed, bug or bad (sabotage). Steal honors the gate-side quota
// check and its stealable-land cap. afterSteal, when set, runs after a
// successful steal so the caller can trigger an auto-sell.
func (f *FriendService) DoFriendOperation(ctx context.Context, friendGid, myGid int64, opType string, afterSteal func()) *FriendOpResult {
	if friendGid <= 0 {
		return &FriendOpResult{OpType: opType, Message: "无效好友ID"}
	}
	enter, err := f.EnterFriendFarm(ctx, friendGid)
	if err != nil {
		return &FriendOpResult{OpType: opType, Message: fmt.Sprintf("进入好友农场失败: %v", err)}
	}
	defer f.LeaveFriendFarm(ctx, friendGid)

	analyzed := f.AnalyzeFriendLands(enter.Lands, myGid)

	switch opType {
	case "steal":
		targets := analyzed.Stealable
		if len(targets) == 0 {
			return &FriendOpResult{OK: true, OpType: opType, Message: "没有可偷取土地"}
		}
		canOperate, canNum := f.CheckCanOperate(ctx, friendGid, gamepb.OpSteal)
		if !canOperate {
			return &FriendOpResult{OK: true, OpType: opType, Message: "今日偷菜次数已用完"}
		}
		if canNum > 0 && int(canNum) < len(targets) {
			targets = targets[:canNum]
		}
		count := f.runBatchWithFallback(ctx, targets, func(ids []int64) error {
			return f.StealHarvest(ctx, friendGid, ids)
		})
		if count > 0 && afterSteal != nil {
			afterSteal()
		}
		return &FriendOpResult{OK: true, OpType: opType, Count: count, Message: fmt.Sprintf("偷取完成 %d 块", count)}

	case "water":
		return f.helpOperation(ctx, friendGid, opType, analyzed.NeedWater, gamepb.OpWater,
			"没有可浇水土地", "今日浇水次数已用完", "浇水完成 %d 块", f.HelpWater)

	case "weed":
		return f.helpOperation(ctx, friendGid, opType, analyzed.NeedWeed, gamepb.OpWeed,
			"没有可除草土地", "今日除草次数已用完", "除草完成 %d 块", f.HelpWeed)

	case "bug":
		return f.helpOperation(ctx, friendGid, opType, analyzed.NeedBug, gamepb.OpInsecticide,
			"没有可除虫土地", "今日除虫次数已用完", "除虫完成 %d 块", f.HelpBug)

	case "bad":
		var bugCount, weedCount int
		if len(analyzed.CanPutBug) > 0 {
			bugCount = f.PutInsects(ctx, friendGid, analyzed.CanPutBug)
		}
		if len(analyzed.CanPutWeed) > 0 {
			weedCount = f.PutWeeds(ctx, friendGid, analyzed.CanPutWeed)
		}
		total := bugCount + weedCount
		if total <= 0 {
			return &FriendOpResult{OK: true, OpType: opType, Message: "没有可捣乱土地或次数已用完"}
		}
		return &FriendOpResult{
			OK:        true,
			OpType:    opType,
			Count:     total,
			BugCount:  bugCount,
			WeedCount: weedCount,
			Message:   fmt.Sprintf("捣乱完成 虫%d/草%d", bugCount, weedCount),
		}
	}

	return &FriendOpResult{OpType: opType, Message: "未知操作类型"}
}

func (f *FriendService) helpOperation(
	ctx context.Context,
	friendGid int64,
	opType string,
	targets []int64,
	operationID int64,
	emptyMsg, quotaMsg, doneFmt string,
	fn func(context.Context, int64, []int64) error,
) *FriendOpResult {
	if len(targets) == 0 {
		return &FriendOpResult{OK: true, OpType: opType, Message: emptyMsg}
	}
	canOperate, _ := f.CheckCanOperate(ctx, friendGid, operationID)
	if !canOperate {
		return &FriendOpResult{OK: true, OpType: opType, Message: quotaMsg}
	}
	count := f.runBatchWithFallback(ctx, targets, func(ids []int64) error {
		return fn(ctx, friendGid, ids)
	})
	return &FriendOpResult{OK: true, OpType: opType, Count: count, Message: fmt.Sprintf(doneFmt, count)}
}

// runBatchWithFallback tries the whole batch in one request; when that
// fails it retries land by land so one rejected land cannot sink the
// rest.
func (f *FriendService) runBatchWithFallback(ctx context.Context, landIds []int64, fn func([]int64) error) int {
	targets := positive(landIds)
	if len(targets) == 0 {
		return 0
	}
	if err := fn(targets); err == nil {
		return len(targets)
	}
	ok := 0
	for _, landID := range targets {
		if err := fn([]int64{landID}); err == nil {
			ok++
		}
		if !sleepCtx(ctx, 100*time.Millisecond) {
			break
		}
	}
	return ok
}

func positive(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func containsGid(owners []int64, gid int64) bool {
	for _, owner := range owners {
		if owner == gid {
			return true
		}
	}
	return false
}

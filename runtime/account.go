// Package runtime hosts one automation runtime per game account and
// the manager that supervises them.
package runtime

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"qq-farm-runtime/domain"
	"qq-farm-runtime/errors"
	"qq-farm-runtime/gameconf"
	"qq-farm-runtime/gamepb"
	"qq-farm-runtime/gate"
	"qq-farm-runtime/logger"
)

// Account is one stored game account. Code is the login credential and
// must never be logged or echoed in errors.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	Code      string `json:"code"`
	Uin       string `json:"uin"`
	QQ        string `json:"qq"`
	Avatar    string `json:"avatar"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// LogFunc receives one runtime log line for the persisted log buffer.
type LogFunc func(accountID, tag, message string, isWarn bool, meta map[string]any)

// KickedFunc fires when the gate kicks the account offline.
type KickedFunc func(accountID, reason string)

// userState is the live snapshot maintained from login and notifies.
type userState struct {
	Gid      int64
	Name     string
	Level    int
	Gold     int64
	Exp      int64
	Coupon   int64
	Platform string
}

// Operations counts what automation has done since start.
type Operations struct {
	Harvest   int `json:"harvest"`
	Water     int `json:"water"`
	Weed      int `json:"weed"`
	Bug       int `json:"bug"`
	Fertilize int `json:"fertilize"`
	Plant     int `json:"plant"`
	Steal     int `json:"steal"`
	HelpWater int `json:"helpWater"`
	HelpWeed  int `json:"helpWeed"`
	HelpBug   int `json:"helpBug"`
	TaskClaim int `json:"taskClaim"`
	Sell      int `json:"sell"`
	Upgrade   int `json:"upgrade"`
}

// FarmOpResult reports one manual or scheduled farm pass.
type FarmOpResult struct {
	HadWork bool     `json:"hadWork"`
	Actions []string `json:"actions"`
}

// Status is the full per-account status view.
type Status struct {
	Connection struct {
		Connected bool `json:"connected"`
	} `json:"connection"`
	Profile struct {
		Name     string `json:"name"`
		Level    int    `json:"level"`
		Gold     int64  `json:"gold"`
		Coupon   int64  `json:"coupon"`
		Exp      int64  `json:"exp"`
		Platform string `json:"platform"`
	} `json:"status"`
	UptimeSec           float64                           `json:"uptime"`
	Operations          Operations                        `json:"operations"`
	SessionExpGained    int64                             `json:"sessionExpGained"`
	SessionGoldGained   int64                             `json:"sessionGoldGained"`
	SessionCouponGained int64                             `json:"sessionCouponGained"`
	LastExpGain         int64                             `json:"lastExpGain"`
	LastGoldGain        int64                             `json:"lastGoldGain"`
	LastPlantError      string                            `json:"lastPlantError,omitempty"`
	Limits              map[int64]*domain.OperationQuota  `json:"limits"`
	Automation          Automation                        `json:"automation"`
	PreferredSeed       int64                             `json:"preferredSeed"`
	ExpProgress         gameconf.ExpProgress              `json:"expProgress"`
	ConfigRevision      int64                             `json:"configRevision"`
	NextChecks          struct {
		FarmRemainSec   int64 `json:"farmRemainSec"`
		FriendRemainSec int64 `json:"friendRemainSec"`
	} `json:"nextChecks"`
	RuntimeView
}

// AccountRuntimeOptions wires one runtime's collaborators.
type AccountRuntimeOptions struct {
	Account           Account
	Settings          AccountConfig
	SettingsRevision  int64
	SessionConfig     gate.Config
	Config            *gameconf.Store
	HeartbeatInterval time.Duration
	ShareFilePath     string
	OnLog             LogFunc
	OnKicked          KickedFunc
}

// AccountRuntime drives one logged-in account: a heartbeat loop, a
// scheduler loop and push-triggered reactions.
type AccountRuntime struct {
	sessionCfg        gate.Config
	config            *gameconf.Store
	heartbeatInterval time.Duration
	onLog             LogFunc
	onKicked          KickedFunc
	shareFilePath     string

	session   *gate.Session
	analytics *domain.Analytics
	farm      *domain.FarmService
	friend    *domain.FriendService
	task      *domain.TaskService
	user      *domain.UserService
	warehouse *domain.WarehouseService
	invite    *domain.InviteService

	mu               sync.Mutex
	account          Account
	settings         AccountConfig
	settingsRevision int64
	running          bool
	connected        bool
	loginReady       bool
	startedAt        time.Time
	state            userState
	initial          userState
	initialReady     bool
	lastGoldGain     int64
	lastExpGain      int64
	ops              Operations
	nextFarmAt       time.Time
	nextFriendAt     time.Time
	lastPushAt       time.Time
	inviteDone       bool

	farmMu   sync.Mutex
	friendMu sync.Mutex
	taskMu   sync.Mutex

	loopCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAccountRuntime builds the runtime and its service stack over a
// not-yet-connected session.
func NewAccountRuntime(opts AccountRuntimeOptions) *AccountRuntime {
	if opts.HeartbeatInterval < 10*time.Second {
		opts.HeartbeatInterval = 25 * time.Second
	}
	platform := opts.Account.Platform
	if platform == "" {
		platform = "qq"
	}
	r := &AccountRuntime{
		sessionCfg:        opts.SessionConfig.WithDefaults(),
		config:            opts.Config,
		heartbeatInterval: opts.HeartbeatInterval,
		onLog:             opts.OnLog,
		onKicked:          opts.OnKicked,
		shareFilePath:     opts.ShareFilePath,
		account:           opts.Account,
		settings:          opts.Settings,
		settingsRevision:  opts.SettingsRevision,
		analytics:         domain.NewAnalytics(opts.Config),
	}
	r.state.Platform = platform
	return r
}

// Start connects, logs in and launches the background loops.
func (r *AccountRuntime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.startedAt = time.Now()
	r.mu.Unlock()

	loopCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.loopCtx = loopCtx
	r.cancel = cancel
	r.mu.Unlock()

	if err := r.connectAndLogin(ctx); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		cancel()
		return err
	}

	r.wg.Add(2)
	go r.heartbeatLoop(loopCtx)
	go r.schedulerLoop(loopCtx)
	return nil
}

// Stop tears the loops and the session down. Idempotent.
func (r *AccountRuntime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.loginReady = false
	r.connected = false
	cancel := r.cancel
	session := r.session
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	if session != nil {
		session.Stop()
	}
}

// spawn runs fn on the runtime's context and wait group, so Stop
// cancels and joins it like the long-lived loops. Returns false once
// the runtime is stopping.
func (r *AccountRuntime) spawn(fn func(ctx context.Context)) bool {
	r.mu.Lock()
	ctx := r.loopCtx
	if !r.running || ctx == nil || ctx.Err() != nil {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
	return true
}

// ApplySettings swaps the configuration and reschedules the checks.
// The revision only moves forward.
func (r *AccountRuntime) ApplySettings(settings AccountConfig, revision int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
	if revision > r.settingsRevision {
		r.settingsRevision = revision
	}
	r.resetScheduleLocked()
}

// UpdateAccount refreshes the stored account record.
func (r *AccountRuntime) UpdateAccount(account Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account = account
}

// Status snapshots the runtime for display.
func (r *AccountRuntime) Status() *Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &Status{}
	st.Connection.Connected = r.connected && r.loginReady && r.session != nil && r.session.Connected()
	st.Profile.Name = r.state.Name
	st.Profile.Level = r.state.Level
	st.Profile.Gold = r.state.Gold
	st.Profile.Coupon = r.state.Coupon
	st.Profile.Exp = r.state.Exp
	st.Profile.Platform = r.state.Platform
	st.UptimeSec = time.Since(r.startedAt).Seconds()
	if st.UptimeSec < 0 {
		st.UptimeSec = 0
	}
	st.Operations = r.ops
	if r.initialReady {
		st.SessionExpGained = r.state.Exp - r.initial.Exp
		st.SessionGoldGained = r.state.Gold - r.initial.Gold
		st.SessionCouponGained = r.state.Coupon - r.initial.Coupon
	}
	st.LastExpGain = r.lastExpGain
	st.LastGoldGain = r.lastGoldGain
	if r.farm != nil {
		st.LastPlantError = r.farm.LastPlantError()
	}
	if r.friend != nil {
		st.Limits = r.friend.OperationLimits()
	} else {
		st.Limits = map[int64]*domain.OperationQuota{}
	}
	st.Automation = r.settings.Automation
	st.PreferredSeed = r.settings.PreferredSeedID
	st.ExpProgress = r.config.LevelExpProgress(r.state.Level, r.state.Exp)
	st.ConfigRevision = r.settingsRevision
	st.NextChecks.FarmRemainSec = remainSec(r.nextFarmAt)
	st.NextChecks.FriendRemainSec = remainSec(r.nextFriendAt)
	return st
}

func remainSec(at time.Time) int64 {
	d := int64(time.Until(at).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// Lands fetches the own farm view and refreshes the quota table.
func (r *AccountRuntime) Lands(ctx context.Context) (*domain.LandsView, error) {
	reply, err := r.farm.AllLands(ctx, 0)
	if err != nil {
		return nil, err
	}
	r.friend.UpdateOperationLimits(reply.OperationLimits)
	return r.farm.BuildLandsView(reply.Lands), nil
}

// DoFarmOperation runs one serialized farm pass.
func (r *AccountRuntime) DoFarmOperation(ctx context.Context, opType string) (*FarmOpResult, error) {
	r.farmMu.Lock()
	defer r.farmMu.Unlock()
	return r.doFarmOperation(ctx, opType)
}

// Friends lists the account's friends.
func (r *AccountRuntime) Friends(ctx context.Context) []*domain.FriendBrief {
	return r.friend.FriendsList(ctx, r.gid())
}

// FriendLands visits a friend's farm and returns the rendered view.
func (r *AccountRuntime) FriendLands(ctx context.Context, friendGid int64) (*domain.LandsView, *domain.FriendLandBuckets, error) {
	return r.friend.FriendLandsDetail(ctx, friendGid, r.gid())
}

// DoFriendOp runs one friend operation and records its counters.
func (r *AccountRuntime) DoFriendOp(ctx context.Context, friendGid int64, opType string) *domain.FriendOpResult {
	result := r.friend.DoFriendOperation(ctx, friendGid, r.gid(), opType, func() {
		r.autoSell(ctx)
	})
	if result.Count > 0 || result.BugCount > 0 || result.WeedCount > 0 {
		r.mu.Lock()
		switch strings.ToLower(strings.TrimSpace(opType)) {
		case "steal":
			r.ops.Steal += result.Count
		case "water":
			r.ops.HelpWater += result.Count
		case "weed":
			r.ops.HelpWeed += result.Count
		case "bug":
			r.ops.HelpBug += result.Count
		case "bad":
			r.ops.Bug += result.BugCount
			r.ops.Weed += result.WeedCount
		}
		r.mu.Unlock()
	}
	return result
}

// Seeds lists the buyable seeds for the current level.
func (r *AccountRuntime) Seeds(ctx context.Context) ([]*domain.SeedOption, error) {
	return r.farm.AvailableSeeds(ctx, r.level())
}

// Bag renders the warehouse view.
func (r *AccountRuntime) Bag(ctx context.Context) (*domain.BagDetail, error) {
	return r.warehouse.BagDetail(ctx)
}

// Rankings returns the crop analytics table.
func (r *AccountRuntime) Rankings(sortBy string) []*domain.PlantRanking {
	return r.analytics.PlantRankings(sortBy)
}

// DebugSell captures bag state around a sell pass.
func (r *AccountRuntime) DebugSell(ctx context.Context) (*domain.DebugSellResult, error) {
	return r.warehouse.DebugSellFruits(ctx)
}

// CheckAndClaimTasks claims finished tasks, serialized per account.
func (r *AccountRuntime) CheckAndClaimTasks(ctx context.Context) (*domain.ClaimSummary, error) {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	result, err := r.task.CheckAndClaim(ctx)
	if err != nil {
		return result, err
	}
	if result.TaskClaimed > 0 {
		r.mu.Lock()
		r.ops.TaskClaim += result.TaskClaimed
		r.mu.Unlock()
	}
	return result, nil
}

func (r *AccountRuntime) gid() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Gid
}

func (r *AccountRuntime) level() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Level
}

func (r *AccountRuntime) automation() Automation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.Automation
}

func (r *AccountRuntime) connectAndLogin(ctx context.Context) error {
	r.mu.Lock()
	code := strings.TrimSpace(r.account.Code)
	platform := r.state.Platform
	old := r.session
	r.mu.Unlock()
	if code == "" {
		return errors.New("code 不能为空")
	}
	if old != nil {
		old.Stop()
	}

	session, err := gate.Connect(ctx, r.sessionCfg, code, logger.Logger)
	if err != nil {
		return err
	}
	session.Dispatcher().On(gate.Wildcard, r.onNotify)

	r.mu.Lock()
	r.session = session
	r.farm = domain.NewFarmService(session, r.config, r.analytics)
	r.friend = domain.NewFriendService(session, r.config)
	r.task = domain.NewTaskService(session)
	r.user = domain.NewUserService(session)
	r.warehouse = domain.NewWarehouseService(session, r.config)
	r.invite = domain.NewInviteService(r.user, platform, r.shareFilePath)
	r.mu.Unlock()

	reply, err := r.user.Login(ctx, r.sessionCfg.ClientVersion)
	if err != nil {
		session.Stop()
		return err
	}
	if reply.Basic == nil {
		session.Stop()
		return errors.New("登录缺少 basic 字段")
	}

	r.mu.Lock()
	r.state.Gid = reply.Basic.Gid
	r.state.Name = reply.Basic.Name
	r.state.Level = int(reply.Basic.Level)
	r.state.Gold = reply.Basic.Gold
	r.state.Exp = reply.Basic.Exp
	r.connected = true
	r.loginReady = true
	r.mu.Unlock()

	if bag, err := r.warehouse.Bag(ctx); err == nil {
		for _, item := range domain.BagItems(bag) {
			if item.ID == gamepb.ItemCoupon {
				r.mu.Lock()
				r.state.Coupon = item.Count
				r.mu.Unlock()
				break
			}
		}
	}

	r.mu.Lock()
	r.initial = r.state
	r.initialReady = true
	startInvites := !r.inviteDone
	r.inviteDone = true
	r.resetScheduleLocked()
	r.mu.Unlock()

	if startInvites {
		r.spawn(r.processInvitesOnce)
	}
	return nil
}

func (r *AccountRuntime) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.mu.Lock()
		ready := r.loginReady
		gid := r.state.Gid
		r.mu.Unlock()
		if !ready {
			continue
		}
		if _, err := r.user.Heartbeat(ctx, gid, r.sessionCfg.ClientVersion); err != nil {
			r.mu.Lock()
			r.connected = false
			r.loginReady = false
			r.mu.Unlock()
		}
	}
}

// schedulerLoop drives reconnects and the periodic farm/friend/task
// checks. Reconnect backoff doubles from 1s up to 30s.
func (r *AccountRuntime) schedulerLoop(ctx context.Context) {
	defer r.wg.Done()
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		r.mu.Lock()
		ready := r.loginReady && r.connected
		nextFarm := r.nextFarmAt
		nextFriend := r.nextFriendAt
		r.mu.Unlock()

		if !ready {
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			if err := r.connectAndLogin(ctx); err != nil {
				r.debugLog("系统", fmt.Sprintf("重连失败: %v", err), "system", "reconnect_failed")
				continue
			}
			backoff = time.Second
			continue
		}

		now := time.Now()
		auto := r.automation()
		if !now.Before(nextFarm) {
			if auto.Farm {
				if _, err := r.DoFarmOperation(ctx, "all"); err != nil {
					r.debugLog("农场", fmt.Sprintf("农场检查失败: %v", err), "farm", "cycle_failed")
				}
			}
			if auto.Task {
				if _, err := r.CheckAndClaimTasks(ctx); err != nil {
					r.debugLog("任务", fmt.Sprintf("任务检查失败: %v", err), "task", "cycle_failed")
				}
			}
			r.mu.Lock()
			r.nextFarmAt = time.Now().Add(r.randIntervalLocked("farm"))
			r.mu.Unlock()
		}
		if !now.Before(nextFriend) {
			if auto.Friend && !r.inFriendQuietHours(time.Now()) {
				r.autoFriendCycle(ctx)
			}
			r.mu.Lock()
			r.nextFriendAt = time.Now().Add(r.randIntervalLocked("friend"))
			r.mu.Unlock()
		}
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

// autoFriendCycle walks the friend list and steals/helps per settings.
func (r *AccountRuntime) autoFriendCycle(ctx context.Context) {
	r.friendMu.Lock()
	defer r.friendMu.Unlock()
	auto := r.automation()
	for _, row := range r.Friends(ctx) {
		if row.Gid <= 0 {
			continue
		}
		if auto.FriendSteal && row.Plant.StealNum > 0 {
			r.DoFriendOp(ctx, row.Gid, "steal")
		}
		if auto.FriendHelp {
			if row.Plant.DryNum > 0 {
				r.DoFriendOp(ctx, row.Gid, "water")
			}
			if row.Plant.WeedNum > 0 {
				r.DoFriendOp(ctx, row.Gid, "weed")
			}
			if row.Plant.InsectNum > 0 {
				r.DoFriendOp(ctx, row.Gid, "bug")
			}
		}
		if auto.FriendBad {
			r.DoFriendOp(ctx, row.Gid, "bad")
		}
	}
}

func (r *AccountRuntime) doFarmOperation(ctx context.Context, opType string) (*FarmOpResult, error) {
	mode := strings.ToLower(strings.TrimSpace(opType))
	if mode == "" {
		mode = "all"
	}
	switch mode {
	case "all", "harvest", "clear", "plant", "upgrade":
	default:
		return nil, errors.Newf("不支持的农田操作: %s", mode)
	}

	reply, err := r.farm.AllLands(ctx, 0)
	if err != nil {
		return nil, err
	}
	r.friend.UpdateOperationLimits(reply.OperationLimits)
	analyzed := r.farm.AnalyzeLands(reply.Lands, time.Now().Unix())
	gid := r.gid()
	var actions []string
	r.debugLog("农场", fmt.Sprintf("农场识别结果 mode=%s: harvestable=%d dead=%d empty=%d",
		mode, len(analyzed.Harvestable), len(analyzed.Dead), len(analyzed.Empty)), "farm", "analyze")

	if mode == "all" || mode == "clear" {
		if len(analyzed.NeedWeed) > 0 {
			if _, err := r.farm.Weed(ctx, analyzed.NeedWeed, gid); err == nil {
				r.recordOp(&r.ops.Weed, len(analyzed.NeedWeed))
				actions = append(actions, fmt.Sprintf("除草%d", len(analyzed.NeedWeed)))
			} else {
				r.debugLog("farm", fmt.Sprintf("weed failed: %v", err), "farm", "weed_failed")
			}
		}
		if len(analyzed.NeedBug) > 0 {
			if _, err := r.farm.Bug(ctx, analyzed.NeedBug, gid); err == nil {
				r.recordOp(&r.ops.Bug, len(analyzed.NeedBug))
				actions = append(actions, fmt.Sprintf("除虫%d", len(analyzed.NeedBug)))
			} else {
				r.debugLog("farm", fmt.Sprintf("bug failed: %v", err), "farm", "bug_failed")
			}
		}
		if len(analyzed.NeedWater) > 0 {
			if _, err := r.farm.Water(ctx, analyzed.NeedWater, gid); err == nil {
				r.recordOp(&r.ops.Water, len(analyzed.NeedWater))
				actions = append(actions, fmt.Sprintf("浇水%d", len(analyzed.NeedWater)))
			} else {
				r.debugLog("farm", fmt.Sprintf("water failed: %v", err), "farm", "water_failed")
			}
		}
	}

	var harvested []int64
	if mode == "all" || mode == "harvest" {
		harvested = analyzed.Harvestable
	}
	if len(harvested) > 0 {
		if _, err := r.farm.Harvest(ctx, harvested, gid); err == nil {
			r.recordOp(&r.ops.Harvest, len(harvested))
			actions = append(actions, fmt.Sprintf("收获%d", len(harvested)))
		} else {
			r.debugLog("farm", fmt.Sprintf("harvest failed: %v", err), "farm", "harvest_failed")
			harvested = nil
		}
	}

	if mode == "all" || mode == "plant" {
		// Harvested lands go through remove->plant too; some server
		// states still require shoveling after harvest.
		deadIds := append(append([]int64(nil), analyzed.Dead...), harvested...)
		planted := r.autoPlant(ctx, deadIds, analyzed.Empty)
		if planted > 0 {
			actions = append(actions, fmt.Sprintf("种植%d", planted))
		}
	}

	if mode == "upgrade" || (mode == "all" && r.automation().LandUpgrade) {
		unlocked := 0
		for _, landID := range analyzed.Unlockable {
			if err := r.farm.UnlockLand(ctx, landID); err != nil {
				r.debugLog("farm", fmt.Sprintf("unlock failed: %v", err), "farm", "unlock_failed")
			} else {
				unlocked++
			}
			if !sleepCtx(ctx, 200*time.Millisecond) {
				break
			}
		}
		if unlocked > 0 {
			actions = append(actions, fmt.Sprintf("解锁%d", unlocked))
		}

		upgraded := 0
		for _, landID := range analyzed.Upgradable {
			if err := r.farm.UpgradeLand(ctx, landID); err != nil {
				r.debugLog("farm", fmt.Sprintf("upgrade failed: %v", err), "farm", "upgrade_failed")
			} else {
				upgraded++
			}
			if !sleepCtx(ctx, 200*time.Millisecond) {
				break
			}
		}
		if upgraded > 0 {
			r.recordOp(&r.ops.Upgrade, upgraded)
			actions = append(actions, fmt.Sprintf("升级%d", upgraded))
		}
	}

	if len(harvested) > 0 && r.automation().Sell {
		r.autoSell(ctx)
	}
	return &FarmOpResult{HadWork: len(actions) > 0, Actions: actions}, nil
}

// autoPlant shovels dead lands and replants everything empty with the
// chosen seed, buying stock when the bag runs short and gold allows.
func (r *AccountRuntime) autoPlant(ctx context.Context, deadIds, emptyIds []int64) int {
	targets := append([]int64(nil), emptyIds...)
	if len(deadIds) > 0 {
		if err := r.farm.RemovePlant(ctx, deadIds); err != nil {
			r.debugLog("farm", fmt.Sprintf("remove_plant failed but continue planting: %v", err), "farm", "remove_plant_failed")
		}
		targets = append(targets, deadIds...)
	}
	targets = uniquePositive(targets)
	if len(targets) == 0 {
		return 0
	}

	r.mu.Lock()
	level := r.state.Level
	strategy := r.settings.Strategy
	preferred := r.settings.PreferredSeedID
	gold := r.state.Gold
	r.mu.Unlock()

	seed, err := r.farm.ChooseSeed(ctx, level, strategy, preferred)
	if err != nil || seed == nil {
		r.debugLog("farm", "skip auto plant: no available seed", "farm", "seed_unavailable")
		return 0
	}
	seedID := seed.SeedID
	goodsID := seed.GoodsID
	price := seed.Price
	targetCount := len(targets)

	stock, stockKnown := r.seedStock(ctx, seedID)
	buyCount := targetCount
	if stockKnown {
		buyCount = 0
		if stock < targetCount {
			missing := targetCount - stock
			canPlant := stock
			if goodsID > 0 && price > 0 {
				affordable := int(gold / price)
				if affordable < 0 {
					affordable = 0
				}
				buyCount = missing
				if affordable < buyCount {
					buyCount = affordable
				}
				canPlant = stock + buyCount
			}
			if canPlant <= 0 {
				r.debugLog("farm", "skip auto plant: no seed stock and cannot buy", "farm", "seed_unavailable_runtime")
				return 0
			}
			if canPlant < targetCount {
				targets = targets[:canPlant]
				targetCount = len(targets)
			}
		}
		r.debugLog("farm", fmt.Sprintf("seed plan resolved: stock=%d, buy=%d, target=%d", stock, buyCount, targetCount), "farm", "seed_plan")
	}

	if goodsID > 0 && price > 0 && buyCount > 0 {
		if buyReply, err := r.farm.BuyGoods(ctx, goodsID, int64(buyCount), price); err == nil {
			r.mu.Lock()
			r.state.Gold -= price * int64(buyCount)
			if r.state.Gold < 0 {
				r.state.Gold = 0
			}
			r.mu.Unlock()
			for _, item := range buyReply.GetItems {
				if item.ID > 0 {
					seedID = item.ID
					break
				}
			}
		} else {
			// Keep planting on buy failure; the bag may already hold
			// enough seeds.
			r.debugLog("farm", fmt.Sprintf("buy seed failed but continue planting: %v", err), "farm", "seed_buy_failed")
			if stockKnown {
				fallback := stock
				if fallback > len(targets) {
					fallback = len(targets)
				}
				if fallback <= 0 {
					return 0
				}
				targets = targets[:fallback]
			}
		}
	}

	planted := r.farm.Plant(ctx, seedID, targets)
	if planted < len(targets) {
		r.debugLog("farm", fmt.Sprintf("plant partial %d/%d: %s",
			planted, len(targets), r.farm.LastPlantError()), "farm", "plant_partial")
	}
	if planted > 0 {
		r.recordOp(&r.ops.Plant, planted)
		mode := r.automation().Fertilizer
		if mode == "" {
			mode = "both"
		}
		plantedIds := targets[:planted]
		if mode == "normal" || mode == "both" {
			r.recordOp(&r.ops.Fertilize, r.farm.Fertilize(ctx, plantedIds, gamepb.ItemFertilizer))
		}
		if mode == "organic" || mode == "both" {
			r.recordOp(&r.ops.Fertilize, r.farm.Fertilize(ctx, plantedIds, gamepb.ItemOrganicFertilizer))
		}
	}
	return planted
}

// seedStock counts the bag stacks of a seed. The second return is false
// when the bag could not be read.
func (r *AccountRuntime) seedStock(ctx context.Context, seedID int64) (int, bool) {
	if seedID <= 0 {
		return 0, true
	}
	bag, err := r.warehouse.Bag(ctx)
	if err != nil {
		r.debugLog("farm", fmt.Sprintf("seed stock check failed: %v", err), "farm", "seed_stock_check_failed")
		return 0, false
	}
	total := 0
	for _, item := range domain.BagItems(bag) {
		if item.ID == seedID && item.Count > 0 {
			total += int(item.Count)
		}
	}
	return total, true
}

func (r *AccountRuntime) autoSell(ctx context.Context) {
	result, err := r.warehouse.SellAllFruits(ctx)
	if err != nil {
		return
	}
	if result.SoldKinds > 0 {
		r.recordOp(&r.ops.Sell, 1)
	}
}

// onNotify reacts to gate pushes: kickout, farm state changes, item and
// profile deltas, task refreshes and friend applications.
func (r *AccountRuntime) onNotify(messageType string, payload []byte) {
	switch {
	case strings.Contains(messageType, "Kickout"):
		notify := &gamepb.KickoutNotify{}
		_ = notify.Unmarshal(payload)
		r.mu.Lock()
		r.connected = false
		r.loginReady = false
		accountID := r.account.ID
		r.mu.Unlock()
		if r.onKicked != nil {
			reason := notify.ReasonMessage
			if reason == "" {
				reason = "未知"
			}
			r.onKicked(accountID, reason)
		}

	case strings.Contains(messageType, "LandsNotify"):
		if !r.automation().FarmPush {
			return
		}
		r.mu.Lock()
		now := time.Now()
		fire := now.Sub(r.lastPushAt) > 500*time.Millisecond
		if fire {
			r.lastPushAt = now
		}
		r.mu.Unlock()
		if fire && r.farmMu.TryLock() {
			spawned := r.spawn(func(ctx context.Context) {
				defer r.farmMu.Unlock()
				if _, err := r.doFarmOperation(ctx, "all"); err != nil {
					r.debugLog("农场", fmt.Sprintf("推送触发检查失败: %v", err), "farm", "push_cycle_failed")
				}
			})
			if !spawned {
				r.farmMu.Unlock()
			}
		}

	case strings.Contains(messageType, "ItemNotify"):
		notify := &gamepb.ItemNotify{}
		if notify.Unmarshal(payload) != nil {
			return
		}
		r.applyItemDeltas(notify)

	case strings.Contains(messageType, "BasicNotify"):
		notify := &gamepb.BasicNotify{}
		if notify.Unmarshal(payload) != nil || notify.Basic == nil {
			return
		}
		r.mu.Lock()
		if notify.Basic.Level >= 0 {
			r.state.Level = int(notify.Basic.Level)
		}
		if notify.Basic.Gold >= 0 {
			r.state.Gold = notify.Basic.Gold
		}
		if notify.Basic.Exp >= 0 {
			r.state.Exp = notify.Basic.Exp
		}
		r.mu.Unlock()

	case strings.Contains(messageType, "TaskInfoNotify"):
		if !r.automation().Task {
			return
		}
		notify := &gamepb.TaskInfoNotify{}
		if notify.Unmarshal(payload) != nil || notify.TaskInfo == nil {
			return
		}
		r.spawn(func(ctx context.Context) {
			if _, err := r.CheckAndClaimTasks(ctx); err != nil {
				r.debugLog("任务", fmt.Sprintf("推送触发任务领取失败: %v", err), "task", "push_claim_failed")
			}
		})

	case strings.Contains(messageType, "FriendApplicationReceivedNotify"):
		notify := &gamepb.FriendApplicationReceivedNotify{}
		if notify.Unmarshal(payload) != nil {
			return
		}
		var gids []int64
		for _, application := range notify.Applications {
			if application.Gid > 0 {
				gids = append(gids, application.Gid)
			}
		}
		if len(gids) > 0 {
			r.spawn(func(ctx context.Context) {
				_ = r.friend.AcceptFriends(ctx, gids)
			})
		}
	}
}

// applyItemDeltas folds item pushes into the exp/gold/coupon trackers.
// Absolute counts win over deltas when present.
func (r *AccountRuntime) applyItemDeltas(notify *gamepb.ItemNotify) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range notify.Items {
		if row.Item == nil {
			continue
		}
		count := row.Item.Count
		delta := row.Delta
		switch row.Item.ID {
		case gamepb.ItemExp:
			old := r.state.Exp
			r.state.Exp = applyDelta(old, count, delta)
			r.lastExpGain = positiveDiff(r.state.Exp, old)
		case gamepb.ItemGold, gamepb.ItemGoldReward:
			old := r.state.Gold
			r.state.Gold = applyDelta(old, count, delta)
			r.lastGoldGain = positiveDiff(r.state.Gold, old)
		case gamepb.ItemCoupon:
			r.state.Coupon = applyDelta(r.state.Coupon, count, delta)
		}
	}
}

func applyDelta(old, count, delta int64) int64 {
	if count > 0 {
		return count
	}
	next := old + delta
	if next < 0 {
		return 0
	}
	return next
}

func positiveDiff(now, old int64) int64 {
	if now > old {
		return now - old
	}
	return 0
}

func (r *AccountRuntime) processInvitesOnce(ctx context.Context) {
	if _, err := r.invite.ProcessInvites(ctx); err != nil {
		r.debugLog("invite", fmt.Sprintf("invite process failed: %v", err), "invite", "invite_process_failed")
	}
}

func (r *AccountRuntime) resetScheduleLocked() {
	now := time.Now()
	r.nextFarmAt = now.Add(r.randIntervalLocked("farm"))
	r.nextFriendAt = now.Add(r.randIntervalLocked("friend"))
}

func (r *AccountRuntime) randIntervalLocked(key string) time.Duration {
	intervals := r.settings.Intervals
	var minSec, maxSec int
	if key == "farm" {
		minSec = intervals.FarmMin
		if minSec <= 0 {
			minSec = intervals.Farm
		}
		maxSec = intervals.FarmMax
	} else {
		minSec = intervals.FriendMin
		if minSec <= 0 {
			minSec = intervals.Friend
		}
		maxSec = intervals.FriendMax
	}
	if minSec < 1 {
		minSec = 1
	}
	if maxSec < minSec {
		maxSec = minSec
	}
	return time.Duration(minSec+rand.Intn(maxSec-minSec+1)) * time.Second
}

// inFriendQuietHours checks the configured local-time window.
func (r *AccountRuntime) inFriendQuietHours(now time.Time) bool {
	r.mu.Lock()
	cfg := r.settings.FriendQuietHours
	r.mu.Unlock()
	if !cfg.Enabled {
		return false
	}
	start, okStart := parseHHMM(cfg.Start)
	end, okEnd := parseHHMM(cfg.End)
	if !okStart || !okEnd {
		return false
	}
	current := now.Hour()*60 + now.Minute()
	if start == end {
		return true
	}
	if start < end {
		return start <= current && current < end
	}
	return current >= start || current < end
}

func parseHHMM(value string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, false
	}
	var hh, mm int
	if _, err := fmt.Sscanf(parts[0], "%d", &hh); err != nil {
		return 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &mm); err != nil {
		return 0, false
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

func (r *AccountRuntime) recordOp(counter *int, n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	*counter += n
	r.mu.Unlock()
}

func (r *AccountRuntime) debugLog(tag, message, module, event string) {
	logger.Debugw(message, "tag", tag, "module", module, "event", event)
	if r.onLog != nil {
		r.mu.Lock()
		accountID := r.account.ID
		r.mu.Unlock()
		r.onLog(accountID, tag, message, false, map[string]any{"module": module, "event": event})
	}
}

func uniquePositive(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

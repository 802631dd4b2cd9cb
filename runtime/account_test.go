package runtime

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qq-farm-runtime/domain"
	"qq-farm-runtime/errors"
	"qq-farm-runtime/gameconf"
	"qq-farm-runtime/gamepb"
)

func newTestRuntime(t *testing.T, cfg AccountConfig) *AccountRuntime {
	t.Helper()
	return NewAccountRuntime(AccountRuntimeOptions{
		Account:  Account{ID: "1", Name: "测试号"},
		Settings: cfg,
		Config:   gameconf.Load(t.TempDir()),
	})
}

// scriptedCaller scripts gate replies per service.Method and records
// every request body.
type scriptedCaller struct {
	mu       sync.Mutex
	bodies   map[string][][]byte
	handlers map[string]func(body []byte) ([]byte, error)
}

func newScriptedCaller() *scriptedCaller {
	return &scriptedCaller{
		bodies:   make(map[string][][]byte),
		handlers: make(map[string]func(body []byte) ([]byte, error)),
	}
}

func (c *scriptedCaller) on(service, method string, fn func(body []byte) ([]byte, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[service+"."+method] = fn
}

func (c *scriptedCaller) reply(service, method string, body []byte) {
	c.on(service, method, func([]byte) ([]byte, error) { return body, nil })
}

func (c *scriptedCaller) Call(_ context.Context, service, method string, body []byte) ([]byte, error) {
	key := service + "." + method
	c.mu.Lock()
	c.bodies[key] = append(c.bodies[key], body)
	fn := c.handlers[key]
	c.mu.Unlock()
	if fn == nil {
		return nil, errors.Newf("no handler for %s", key)
	}
	return fn(body)
}

func (c *scriptedCaller) callCount(service, method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies[service+"."+method])
}

func (c *scriptedCaller) lastBody(service, method string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	bodies := c.bodies[service+"."+method]
	if len(bodies) == 0 {
		return nil
	}
	return bodies[len(bodies)-1]
}

// newFarmConfig loads a one-crop static table: 白萝卜 (seed 20001,
// fruit 40001, level 1).
func newFarmConfig(t *testing.T) *gameconf.Store {
	t.Helper()
	root := t.TempDir()
	configDir := filepath.Join(root, "qqfarm文档", "gameConfig")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	files := map[string]string{
		"RoleLevel.json": `[
			{"level": 1, "exp": 0},
			{"level": 2, "exp": 100}
		]`,
		"Plant.json": `[
			{"id": 10230001, "name": "白萝卜", "seed_id": 20001, "exp": 3,
			 "grow_phases": "1:60;2:120;3:180", "seasons": 1, "land_level_need": 1,
			 "fruit": {"id": 40001, "count": 12}}
		]`,
		"ItemInfo.json": `[
			{"id": 20001, "name": "白萝卜种子", "price": 10, "type": 5, "level": 1},
			{"id": 40001, "name": "白萝卜", "price": 5, "type": 1}
		]`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(configDir, name), []byte(content), 0o644))
	}
	return gameconf.Load(root)
}

// newScriptedRuntime wires the service stack over a scripted caller
// instead of a live session.
func newScriptedRuntime(t *testing.T, cfg AccountConfig, caller *scriptedCaller) *AccountRuntime {
	t.Helper()
	config := newFarmConfig(t)
	r := NewAccountRuntime(AccountRuntimeOptions{
		Account:  Account{ID: "1", Name: "测试号"},
		Settings: cfg,
		Config:   config,
	})
	r.farm = domain.NewFarmService(caller, config, r.analytics)
	r.friend = domain.NewFriendService(caller, config)
	r.warehouse = domain.NewWarehouseService(caller, config)
	return r
}

func TestParseHHMM(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		ok      bool
	}{
		{"00:00", 0, true},
		{"23:59", 23*60 + 59, true},
		{" 07:30 ", 7*60 + 30, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"-1:00", 0, false},
		{"1200", 0, false},
		{"ab:cd", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		minutes, ok := parseHHMM(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.minutes, minutes, tc.in)
		}
	}
}

func TestInFriendQuietHours(t *testing.T) {
	at := func(hh, mm int) time.Time {
		return time.Date(2026, 8, 24, hh, mm, 0, 0, time.Local)
	}
	cfg := DefaultAccountConfig()
	cfg.FriendQuietHours = QuietHours{Enabled: true, Start: "23:00", End: "07:00"}
	r := newTestRuntime(t, cfg)

	// The window wraps midnight.
	assert.True(t, r.inFriendQuietHours(at(23, 30)))
	assert.True(t, r.inFriendQuietHours(at(2, 0)))
	assert.True(t, r.inFriendQuietHours(at(6, 59)))
	assert.False(t, r.inFriendQuietHours(at(7, 0)))
	assert.False(t, r.inFriendQuietHours(at(12, 0)))

	cfg.FriendQuietHours = QuietHours{Enabled: true, Start: "09:00", End: "18:00"}
	r.ApplySettings(cfg, 1)
	assert.True(t, r.inFriendQuietHours(at(9, 0)))
	assert.False(t, r.inFriendQuietHours(at(18, 0)))
	assert.False(t, r.inFriendQuietHours(at(8, 59)))

	// start == end means always quiet.
	cfg.FriendQuietHours = QuietHours{Enabled: true, Start: "08:00", End: "08:00"}
	r.ApplySettings(cfg, 2)
	assert.True(t, r.inFriendQuietHours(at(3, 0)))

	// Disabled or unparseable windows never suppress.
	cfg.FriendQuietHours = QuietHours{Enabled: false, Start: "23:00", End: "07:00"}
	r.ApplySettings(cfg, 3)
	assert.False(t, r.inFriendQuietHours(at(23, 30)))

	cfg.FriendQuietHours = QuietHours{Enabled: true, Start: "abc", End: "07:00"}
	r.ApplySettings(cfg, 4)
	assert.False(t, r.inFriendQuietHours(at(23, 30)))
}

func TestApplySettingsRevisionMonotonic(t *testing.T) {
	r := newTestRuntime(t, DefaultAccountConfig())
	r.ApplySettings(DefaultAccountConfig(), 10)
	assert.Equal(t, int64(10), r.settingsRevision)

	// A stale revision updates the settings but not the counter.
	cfg := DefaultAccountConfig()
	cfg.Strategy = "profit"
	r.ApplySettings(cfg, 4)
	assert.Equal(t, int64(10), r.settingsRevision)
	assert.Equal(t, "profit", r.settings.Strategy)
}

func TestRandIntervalBounds(t *testing.T) {
	cfg := DefaultAccountConfig()
	cfg.Intervals = Intervals{Farm: 5, FarmMin: 0, FarmMax: 0, Friend: 20, FriendMin: 10, FriendMax: 30}
	r := newTestRuntime(t, cfg)

	for i := 0; i < 50; i++ {
		// FarmMin 0 falls back to Farm; FarmMax below that collapses.
		assert.Equal(t, 5*time.Second, r.randIntervalLocked("farm"))

		d := r.randIntervalLocked("friend")
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	}

	cfg.Intervals = Intervals{}
	r.ApplySettings(cfg, 1)
	assert.Equal(t, time.Second, r.randIntervalLocked("farm"))
}

func TestStatusSnapshot(t *testing.T) {
	r := newTestRuntime(t, DefaultAccountConfig())
	st := r.Status()
	require.NotNil(t, st)
	assert.False(t, st.Connection.Connected)
	assert.Equal(t, "qq", st.Profile.Platform)
	assert.True(t, st.Automation.Farm)
	assert.NotNil(t, st.Limits)
}

func TestApplyDelta(t *testing.T) {
	// An absolute count wins over the delta.
	assert.Equal(t, int64(80), applyDelta(50, 80, 10))
	assert.Equal(t, int64(60), applyDelta(50, 0, 10))
	assert.Equal(t, int64(40), applyDelta(50, 0, -10))
	// Never below zero.
	assert.Equal(t, int64(0), applyDelta(5, 0, -10))
}

func TestPositiveDiff(t *testing.T) {
	assert.Equal(t, int64(7), positiveDiff(10, 3))
	assert.Equal(t, int64(0), positiveDiff(3, 10))
	assert.Equal(t, int64(0), positiveDiff(3, 3))
}

func TestUniquePositive(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, uniquePositive([]int64{3, 1, 3, 0, -4, 2, 1}))
	assert.Empty(t, uniquePositive(nil))
}

func TestRemainSec(t *testing.T) {
	assert.Equal(t, int64(0), remainSec(time.Now().Add(-time.Minute)))
	assert.GreaterOrEqual(t, remainSec(time.Now().Add(30*time.Second)), int64(28))
}

func TestSpawnTracksAndStops(t *testing.T) {
	r := newTestRuntime(t, DefaultAccountConfig())

	// Nothing spawns before Start.
	assert.False(t, r.spawn(func(context.Context) {}))

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.running = true
	r.loopCtx = ctx
	r.cancel = cancel
	r.mu.Unlock()

	started := make(chan struct{})
	finished := make(chan struct{})
	require.True(t, r.spawn(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	}))
	<-started

	// Stop cancels the spawned goroutine and joins it.
	r.Stop()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("spawned goroutine still running after Stop")
	}

	// A stopped runtime refuses further spawns.
	assert.False(t, r.spawn(func(context.Context) {}))
}

func TestAutoPlantBuysWithinGoldBudget(t *testing.T) {
	cfg := DefaultAccountConfig()
	cfg.PreferredSeedID = 20001
	cfg.Automation.Fertilizer = "none"
	caller := newScriptedCaller()
	r := newScriptedRuntime(t, cfg, caller)
	r.mu.Lock()
	r.state.Level = 1
	r.state.Gold = 199
	r.mu.Unlock()

	caller.reply(domain.ShopServiceName, "ShopInfo", (&gamepb.ShopInfoReply{
		GoodsList: []*gamepb.Goods{{ID: 101, ItemID: 20001, Price: 100, Unlocked: true}},
	}).Marshal())
	caller.reply(domain.ItemServiceName, "Bag", (&gamepb.BagReply{
		ItemBag: &gamepb.ItemBag{Items: []*gamepb.Item{{ID: 20001, Count: 1, UID: 9}}},
	}).Marshal())
	caller.reply(domain.ShopServiceName, "BuyGoods", (&gamepb.BuyGoodsReply{
		GetItems: []*gamepb.Item{{ID: 20001, Count: 1}},
	}).Marshal())
	var plantedLands []int64
	caller.on(domain.PlantServiceName, "Plant", func(body []byte) ([]byte, error) {
		req := &gamepb.PlantRequest{}
		if err := req.Unmarshal(body); err != nil {
			return nil, err
		}
		for _, item := range req.Items {
			plantedLands = append(plantedLands, item.LandIds...)
		}
		return nil, nil
	})

	// One stack in the bag plus one affordable purchase covers two of
	// the four empty lands; the rest wait for the next pass.
	planted := r.autoPlant(context.Background(), nil, []int64{11, 12, 13, 14})
	assert.Equal(t, 2, planted)
	assert.Equal(t, []int64{11, 12}, plantedLands)

	require.Equal(t, 1, caller.callCount(domain.ShopServiceName, "BuyGoods"))
	buyReq := &gamepb.BuyGoodsRequest{}
	require.NoError(t, buyReq.Unmarshal(caller.lastBody(domain.ShopServiceName, "BuyGoods")))
	assert.Equal(t, int64(101), buyReq.GoodsID)
	assert.Equal(t, int64(1), buyReq.Num)
	assert.Equal(t, int64(100), buyReq.Price)

	r.mu.Lock()
	assert.Equal(t, 2, r.ops.Plant)
	assert.Equal(t, int64(99), r.state.Gold)
	r.mu.Unlock()
}

func TestDoFarmOperationFullPass(t *testing.T) {
	cfg := DefaultAccountConfig()
	cfg.PreferredSeedID = 20001
	cfg.Automation.LandUpgrade = false
	cfg.Automation.Fertilizer = "none"
	caller := newScriptedCaller()
	r := newScriptedRuntime(t, cfg, caller)
	r.mu.Lock()
	r.state.Level = 1
	r.state.Gold = 1000
	r.mu.Unlock()

	mature := func() *gamepb.PlantInfo {
		return &gamepb.PlantInfo{
			ID:     10230001,
			Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseMature, BeginTime: 1000}},
		}
	}
	caller.reply(domain.PlantServiceName, "AllLands", (&gamepb.AllLandsReply{
		Lands: []*gamepb.LandInfo{
			{ID: 1, Unlocked: true, Plant: mature()},
			{ID: 2, Unlocked: true, Plant: mature()},
			{ID: 3, Unlocked: true, Plant: &gamepb.PlantInfo{
				ID:     10230001,
				Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseDead, BeginTime: 1000}},
			}},
			{ID: 4, Unlocked: true},
		},
		OperationLimits: []*gamepb.OperationLimit{{ID: gamepb.OpHarvest, DayTimes: 5}},
	}).Marshal())
	caller.reply(domain.PlantServiceName, "Harvest", (&gamepb.HarvestReply{}).Marshal())
	caller.reply(domain.PlantServiceName, "RemovePlant", nil)
	caller.reply(domain.PlantServiceName, "Plant", nil)
	caller.reply(domain.ShopServiceName, "ShopInfo", (&gamepb.ShopInfoReply{
		GoodsList: []*gamepb.Goods{{ID: 101, ItemID: 20001, Price: 10, Unlocked: true}},
	}).Marshal())
	caller.reply(domain.ItemServiceName, "Bag", (&gamepb.BagReply{
		ItemBag: &gamepb.ItemBag{Items: []*gamepb.Item{
			{ID: 20001, Count: 10, UID: 1},
			{ID: 40001, Count: 12, UID: 2},
		}},
	}).Marshal())
	caller.reply(domain.ItemServiceName, "Sell", (&gamepb.SellReply{
		GetItems: []*gamepb.Item{{ID: gamepb.ItemGold, Count: 60}},
	}).Marshal())

	result, err := r.DoFarmOperation(context.Background(), "all")
	require.NoError(t, err)
	assert.True(t, result.HadWork)
	assert.Contains(t, result.Actions, "收获2")
	assert.Contains(t, result.Actions, "种植4")

	harvestReq := &gamepb.HarvestRequest{}
	require.NoError(t, harvestReq.Unmarshal(caller.lastBody(domain.PlantServiceName, "Harvest")))
	assert.Equal(t, []int64{1, 2}, harvestReq.LandIds)

	// Harvested lands are shoveled along with the dead one before
	// replanting.
	removeReq := &gamepb.RemovePlantRequest{}
	require.NoError(t, removeReq.Unmarshal(caller.lastBody(domain.PlantServiceName, "RemovePlant")))
	assert.Equal(t, []int64{3, 1, 2}, removeReq.LandIds)

	// Ten seeds in stock cover all four lands without a purchase.
	assert.Equal(t, 4, caller.callCount(domain.PlantServiceName, "Plant"))
	assert.Zero(t, caller.callCount(domain.ShopServiceName, "BuyGoods"))

	// The harvest triggers one fruit sell pass.
	assert.Equal(t, 1, caller.callCount(domain.ItemServiceName, "Sell"))

	r.mu.Lock()
	assert.Equal(t, 2, r.ops.Harvest)
	assert.Equal(t, 4, r.ops.Plant)
	assert.Equal(t, 1, r.ops.Sell)
	r.mu.Unlock()
}

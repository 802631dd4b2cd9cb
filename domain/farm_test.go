package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/gamepb"
)

func newTestFarm(t *testing.T) (*FarmService, *fakeCaller) {
	t.Helper()
	caller := newFakeCaller()
	config := newTestConfig(t)
	return NewFarmService(caller, config, NewAnalytics(config)), caller
}

func TestNormalizeTimeSec(t *testing.T) {
	assert.Equal(t, int64(0), NormalizeTimeSec(0))
	assert.Equal(t, int64(0), NormalizeTimeSec(-5))
	assert.Equal(t, int64(1700000000), NormalizeTimeSec(1700000000))
	assert.Equal(t, int64(1700000000), NormalizeTimeSec(1700000000123))
}

func TestAnalyzeLands(t *testing.T) {
	farm, _ := newTestFarm(t)
	const now = int64(1000)

	lands := []*gamepb.LandInfo{
		{ID: 1, Unlocked: false, CouldUnlock: true},
		{ID: 2, Unlocked: true, CouldUpgrade: true},
		{ID: 3, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID:           10230001,
			DryNum:       1,
			WeedOwners:   []int64{5},
			InsectOwners: []int64{6},
			Phases: []*gamepb.PlantPhaseInfo{
				{Phase: 1, BeginTime: 100},
				{Phase: gamepb.PhaseMature, BeginTime: 2500},
			},
		}},
		{ID: 4, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID: 10230001,
			Phases: []*gamepb.PlantPhaseInfo{
				{Phase: 1, BeginTime: 100},
				{Phase: gamepb.PhaseMature, BeginTime: 500},
			},
		}},
		{ID: 5, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID:     10230001,
			Phases: []*gamepb.PlantPhaseInfo{{Phase: gamepb.PhaseDead, BeginTime: 900}},
		}},
	}

	res := farm.AnalyzeLands(lands, now)
	assert.Equal(t, []int64{1}, res.Unlockable)
	assert.Equal(t, []int64{2}, res.Upgradable)
	assert.Equal(t, []int64{2}, res.Empty)
	assert.Equal(t, []int64{3}, res.Growing)
	assert.Equal(t, []int64{4}, res.Harvestable)
	assert.Equal(t, []int64{5}, res.Dead)
	assert.Equal(t, []int64{3}, res.NeedWater)
	assert.Equal(t, []int64{3}, res.NeedWeed)
	assert.Equal(t, []int64{3}, res.NeedBug)

	require.Len(t, res.LandsDetail, 5)
	assert.Equal(t, LandLocked, res.LandsDetail[0].Status)
	assert.Equal(t, "未解锁", res.LandsDetail[0].PhaseName)
	assert.Equal(t, LandEmpty, res.LandsDetail[1].Status)

	growing := res.LandsDetail[2]
	assert.Equal(t, LandGrowing, growing.Status)
	assert.Equal(t, "白萝卜", growing.PlantName)
	assert.Equal(t, int64(1500), growing.MatureInSec)
	assert.True(t, growing.NeedWater)

	assert.Equal(t, LandHarvestable, res.LandsDetail[3].Status)
	assert.Equal(t, "成熟", res.LandsDetail[3].PhaseName)
	assert.Equal(t, LandDead, res.LandsDetail[4].Status)
}

func TestAnalyzeLandsFuturePhasesFallBack(t *testing.T) {
	farm, _ := newTestFarm(t)

	// All begin times in the future: the first declared phase wins.
	res := farm.AnalyzeLands([]*gamepb.LandInfo{
		{ID: 1, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID:     10230001,
			Phases: []*gamepb.PlantPhaseInfo{{Phase: 3, BeginTime: 5000}},
		}},
	}, 1000)
	assert.Equal(t, []int64{1}, res.Growing)
	assert.Equal(t, "小叶", res.LandsDetail[0].PhaseName)
}

func TestAnalyzeLandsMillisecondTimestamps(t *testing.T) {
	farm, _ := newTestFarm(t)
	const nowSec = int64(1_700_000_000)

	res := farm.AnalyzeLands([]*gamepb.LandInfo{
		{ID: 1, Unlocked: true, Plant: &gamepb.PlantInfo{
			ID: 10230001,
			Phases: []*gamepb.PlantPhaseInfo{
				{Phase: 1, BeginTime: (nowSec - 100) * 1000},
				{Phase: gamepb.PhaseMature, BeginTime: (nowSec + 600) * 1000},
			},
		}},
	}, nowSec)
	assert.Equal(t, []int64{1}, res.Growing)
	assert.Equal(t, int64(600), res.LandsDetail[0].MatureInSec)
}

func TestBuildLandsViewSummary(t *testing.T) {
	farm, _ := newTestFarm(t)

	view := farm.BuildLandsView([]*gamepb.LandInfo{
		{ID: 1, Unlocked: true},
		{ID: 2, Unlocked: true},
	})
	assert.Equal(t, 2, view.Summary.Empty)
	assert.Len(t, view.Lands, 2)
}

func seedShopReply() []byte {
	return (&gamepb.ShopInfoReply{GoodsList: []*gamepb.Goods{
		{ID: 102, ItemID: 20002, Price: 50, Unlocked: true,
			Conds: []*gamepb.GoodsCond{{Type: gamepb.CondMinLevel, Param: 3}}},
		{ID: 101, ItemID: 20001, Price: 10, Unlocked: true,
			Conds: []*gamepb.GoodsCond{{Type: gamepb.CondMinLevel, Param: 1}}},
		{ID: 103, ItemID: 20003, Price: 99, Unlocked: true,
			LimitCount: 5, BoughtNum: 5,
			Conds: []*gamepb.GoodsCond{{Type: gamepb.CondMinLevel, Param: 1}}},
	}}).Marshal()
}

func TestAvailableSeeds(t *testing.T) {
	farm, caller := newTestFarm(t)
	caller.reply(ShopServiceName, "ShopInfo", seedShopReply())

	seeds, err := farm.AvailableSeeds(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, seeds, 3)

	// Sorted by (requiredLevel, seedId).
	assert.Equal(t, int64(20001), seeds[0].SeedID)
	assert.Equal(t, int64(20003), seeds[1].SeedID)
	assert.Equal(t, int64(20002), seeds[2].SeedID)

	assert.Equal(t, "白萝卜", seeds[0].Name)
	assert.False(t, seeds[0].Locked)
	assert.True(t, seeds[1].SoldOut)
	assert.True(t, seeds[2].Locked) // level 2 < required 3
}

func TestChooseSeedPreferred(t *testing.T) {
	farm, caller := newTestFarm(t)
	caller.reply(ShopServiceName, "ShopInfo", seedShopReply())

	seed, err := farm.ChooseSeed(context.Background(), 5, StrategyPreferred, 20001)
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Equal(t, int64(20001), seed.SeedID)
}

func TestChooseSeedRanking(t *testing.T) {
	farm, caller := newTestFarm(t)
	caller.reply(ShopServiceName, "ShopInfo", seedShopReply())

	// 胡萝卜 out-earns 白萝卜 on exp/hour and its level gate passes.
	seed, err := farm.ChooseSeed(context.Background(), 5, StrategyMaxExp, 0)
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Equal(t, int64(20002), seed.SeedID)

	// At level 1 the ranking winner is locked; the cheaper crop wins.
	seed, err = farm.ChooseSeed(context.Background(), 1, StrategyMaxExp, 0)
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Equal(t, int64(20001), seed.SeedID)
}

func TestChooseSeedFallbackHighestLevel(t *testing.T) {
	farm, caller := newTestFarm(t)
	caller.reply(ShopServiceName, "ShopInfo", seedShopReply())

	seed, err := farm.ChooseSeed(context.Background(), 5, StrategyPreferred, 0)
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Equal(t, int64(20002), seed.SeedID)
}

func TestChooseSeedNothingBuyable(t *testing.T) {
	farm, caller := newTestFarm(t)
	caller.reply(ShopServiceName, "ShopInfo", (&gamepb.ShopInfoReply{}).Marshal())

	seed, err := farm.ChooseSeed(context.Background(), 5, StrategyPreferred, 0)
	require.NoError(t, err)
	assert.Nil(t, seed)
}

func TestPlantPrefersItemsPayload(t *testing.T) {
	farm, caller := newTestFarm(t)

	var seen []int64
	caller.on(PlantServiceName, "Plant", func(body []byte) ([]byte, error) {
		req := &gamepb.PlantRequest{}
		require.NoError(t, req.Unmarshal(body))
		require.Len(t, req.Items, 1)
		require.Len(t, req.Items[0].LandIds, 1)
		assert.Empty(t, req.LandAndSeed)
		assert.Equal(t, int64(20001), req.Items[0].SeedID)
		land := req.Items[0].LandIds[0]
		seen = append(seen, land)
		if land == 2 {
			return nil, errors.New("land busy")
		}
		return nil, nil
	})

	ok := farm.Plant(context.Background(), 20001, []int64{1, 2, 3})
	assert.Equal(t, 2, ok)
	assert.Equal(t, []int64{1, 2, 3}, seen)
	assert.Contains(t, farm.LastPlantError(), "land busy")
	failures := farm.LastPlantFailures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[2], "land busy")
}

func TestPlantFailureTextNeverEmpty(t *testing.T) {
	farm, caller := newTestFarm(t)
	caller.fail(PlantServiceName, "Plant", errors.New("boom"))

	ok := farm.Plant(context.Background(), 20001, []int64{7})
	assert.Equal(t, 0, ok)
	assert.NotEmpty(t, farm.LastPlantError())
	assert.NotEmpty(t, farm.LastPlantFailures())

	// A clean pass resets both.
	caller.reply(PlantServiceName, "Plant", nil)
	ok = farm.Plant(context.Background(), 20001, []int64{7})
	assert.Equal(t, 1, ok)
	assert.Empty(t, farm.LastPlantError())
	assert.Empty(t, farm.LastPlantFailures())
}

func TestFertilizeStopsAtFirstFailure(t *testing.T) {
	farm, caller := newTestFarm(t)

	caller.on(PlantServiceName, "Fertilize", func(body []byte) ([]byte, error) {
		req := &gamepb.FertilizeRequest{}
		require.NoError(t, req.Unmarshal(body))
		require.Len(t, req.LandIds, 1)
		assert.Equal(t, int64(1011), req.FertilizerID)
		if req.LandIds[0] == 2 {
			return nil, errors.New("bucket empty")
		}
		return nil, nil
	})

	ok := farm.Fertilize(context.Background(), []int64{1, 2, 3}, 1011)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, caller.callCount(PlantServiceName, "Fertilize"))
}

func TestHarvestRequestShape(t *testing.T) {
	farm, caller := newTestFarm(t)
	caller.reply(PlantServiceName, "Harvest", (&gamepb.HarvestReply{
		OperationLimits: []*gamepb.OperationLimit{{ID: gamepb.OpHarvest, DayTimes: 1}},
	}).Marshal())

	reply, err := farm.Harvest(context.Background(), []int64{4, 7}, 0)
	require.NoError(t, err)
	require.Len(t, reply.OperationLimits, 1)

	req := &gamepb.HarvestRequest{}
	require.NoError(t, req.Unmarshal(caller.lastBody(PlantServiceName, "Harvest")))
	assert.Equal(t, []int64{4, 7}, req.LandIds)
	assert.False(t, req.IsAll)
}

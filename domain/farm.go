package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"qq-farm-runtime/gameconf"
	"qq-farm-runtime/gamepb"
)

// Land status values in analysis output.
const (
	LandLocked      = "locked"
	LandEmpty       = "empty"
	LandGrowing     = "growing"
	LandHarvestable = "harvestable"
	LandDead        = "dead"
)

var phaseNames = map[int32]string{
	0: "未知",
	1: "种子",
	2: "发芽",
	3: "小叶",
	4: "大叶",
	5: "开花",
	6: "成熟",
	7: "枯萎",
}

// NormalizeTimeSec converts a phase timestamp to unix seconds. The
// gate reports milliseconds for some crops; anything above 10^12 is
// treated as ms.
func NormalizeTimeSec(raw int64) int64 {
	if raw <= 0 {
		return 0
	}
	if raw > 1_000_000_000_000 {
		return raw / 1000
	}
	return raw
}

// LandAnalysis buckets the land ids by what automation should do next.
type LandAnalysis struct {
	Harvestable []int64
	Growing     []int64
	Empty       []int64
	Dead        []int64
	NeedWater   []int64
	NeedWeed    []int64
	NeedBug     []int64
	Unlockable  []int64
	Upgradable  []int64
	LandsDetail []*LandDetail
}

// LandDetail is one land row for display.
type LandDetail struct {
	ID          int64  `json:"id"`
	Unlocked    bool   `json:"unlocked"`
	Status      string `json:"status"`
	PlantName   string `json:"plantName"`
	PhaseName   string `json:"phaseName"`
	Level       int32  `json:"level"`
	NeedWater   bool   `json:"needWater"`
	NeedWeed    bool   `json:"needWeed"`
	NeedBug     bool   `json:"needBug"`
	MatureInSec int64  `json:"matureInSec,omitempty"`
}

// LandsSummary counts the analysis buckets for display.
type LandsSummary struct {
	Harvestable int `json:"harvestable"`
	Growing     int `json:"growing"`
	Empty       int `json:"empty"`
	Dead        int `json:"dead"`
	NeedWater   int `json:"needWater"`
	NeedWeed    int `json:"needWeed"`
	NeedBug     int `json:"needBug"`
}

// LandsView is the rendered farm snapshot.
type LandsView struct {
	Lands   []*LandDetail `json:"lands"`
	Summary LandsSummary  `json:"summary"`
}

// SeedOption is one buyable seed from the seed shop.
type SeedOption struct {
	SeedID        int64  `json:"seedId"`
	GoodsID       int64  `json:"goodsId"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	RequiredLevel int    `json:"requiredLevel"`
	Locked        bool   `json:"locked"`
	SoldOut       bool   `json:"soldOut"`
	Image         string `json:"image"`
}

// SeedStrategy selects how automation picks what to plant.
const (
	StrategyPreferred     = "preferred"
	StrategyMaxExp        = "max_exp"
	StrategyMaxFertExp    = "max_fert_exp"
	StrategyMaxProfit     = "max_profit"
	StrategyMaxFertProfit = "max_fert_profit"
)

// FarmService wraps the plant and shop gate services for one account.
type FarmService struct {
	caller    Caller
	config    *gameconf.Store
	analytics *Analytics

	mu                sync.Mutex
	lastPlantError    string
	lastPlantFailures map[int64]string
}

func NewFarmService(caller Caller, config *gameconf.Store, analytics *Analytics) *FarmService {
	return &FarmService{caller: caller, config: config, analytics: analytics}
}

// AllLands fetches the land snapshot. hostGid 0 means own farm.
func (f *FarmService) AllLands(ctx context.Context, hostGid int64) (*gamepb.AllLandsReply, error) {
	req := &gamepb.AllLandsRequest{HostGid: hostGid}
	body, err := f.caller.Call(ctx, PlantServiceName, "AllLands", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.AllLandsReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// Harvest collects mature crops on the given lands.
func (f *FarmService) Harvest(ctx context.Context, landIds []int64, hostGid int64) (*gamepb.HarvestReply, error) {
	req := &gamepb.HarvestRequest{LandIds: landIds, HostGid: hostGid, IsAll: false}
	body, err := f.caller.Call(ctx, PlantServiceName, "Harvest", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.HarvestReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// Water waters dry lands.
func (f *FarmService) Water(ctx context.Context, landIds []int64, hostGid int64) (*gamepb.WaterLandReply, error) {
	return f.landBatch(ctx, "WaterLand", landIds, hostGid)
}

// Weed clears weeds.
func (f *FarmService) Weed(ctx context.Context, landIds []int64, hostGid int64) (*gamepb.WeedOutReply, error) {
	return f.landBatch(ctx, "WeedOut", landIds, hostGid)
}

// Bug removes insects.
func (f *FarmService) Bug(ctx context.Context, landIds []int64, hostGid int64) (*gamepb.InsecticideReply, error) {
	return f.landBatch(ctx, "Insecticide", landIds, hostGid)
}

func (f *FarmService) landBatch(ctx context.Context, method string, landIds []int64, hostGid int64) (*gamepb.WaterLandReply, error) {
	req := &gamepb.WaterLandRequest{LandIds: landIds, HostGid: hostGid}
	body, err := f.caller.Call(ctx, PlantServiceName, method, req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.WaterLandReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// Fertilize applies one dose per land, stopping at the first failure
// (usually an empty fertilizer bucket). Returns how many doses landed.
func (f *FarmService) Fertilize(ctx context.Context, landIds []int64, fertilizerID int64) int {
	ok := 0
	for i, landID := range landIds {
		req := &gamepb.FertilizeRequest{LandIds: []int64{landID}, FertilizerID: fertilizerID}
		if _, err := f.caller.Call(ctx, PlantServiceName, "Fertilize", req.Marshal()); err != nil {
			break
		}
		ok++
		if len(landIds) > 1 && i < len(landIds)-1 {
			if !sleepCtx(ctx, batchDelay) {
				break
			}
		}
	}
	return ok
}

// RemovePlant clears dead or harvested plants from the lands.
func (f *FarmService) RemovePlant(ctx context.Context, landIds []int64) error {
	req := &gamepb.RemovePlantRequest{LandIds: landIds}
	_, err := f.caller.Call(ctx, PlantServiceName, "RemovePlant", req.Marshal())
	return err
}

// UpgradeLand upgrades one land level.
func (f *FarmService) UpgradeLand(ctx context.Context, landID int64) error {
	req := &gamepb.UpgradeLandRequest{LandID: landID}
	_, err := f.caller.Call(ctx, PlantServiceName, "UpgradeLand", req.Marshal())
	return err
}

// UnlockLand opens one locked land.
func (f *FarmService) UnlockLand(ctx context.Context, landID int64) error {
	req := &gamepb.UnlockLandRequest{LandID: landID}
	_, err := f.caller.Call(ctx, PlantServiceName, "UnlockLand", req.Marshal())
	return err
}

// Plant sows seedID on each land, one land per request since the gate
// rejects multi-land batches. Failures on one land do not stop the
// rest; each is recorded per land and the last failure text is kept
// for status output. Returns how many lands were planted.
func (f *FarmService) Plant(ctx context.Context, seedID int64, landIds []int64) int {
	ok := 0
	failures := make(map[int64]string)
	lastError := ""
	for i, landID := range landIds {
		req := &gamepb.PlantRequest{
			Items: []*gamepb.PlantItem{{SeedID: seedID, LandIds: []int64{landID}}},
		}
		if _, err := f.caller.Call(ctx, PlantServiceName, "Plant", req.Marshal()); err == nil {
			ok++
		} else {
			text := err.Error()
			if text == "" {
				text = "plant failed"
			}
			failures[landID] = text
			lastError = text
		}
		if len(landIds) > 1 && i < len(landIds)-1 {
			if !sleepCtx(ctx, batchDelay) {
				break
			}
		}
	}
	f.mu.Lock()
	f.lastPlantError = lastError
	f.lastPlantFailures = failures
	f.mu.Unlock()
	return ok
}

// LastPlantError is the text of the most recent plant failure, empty
// after a fully successful pass.
func (f *FarmService) LastPlantError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPlantError
}

// LastPlantFailures maps land id to failure text for the most recent
// plant pass.
func (f *FarmService) LastPlantFailures() map[int64]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]string, len(f.lastPlantFailures))
	for land, text := range f.lastPlantFailures {
		out[land] = text
	}
	return out
}

// ShopInfo fetches a shop page. Shop 2 is the seed shop.
func (f *FarmService) ShopInfo(ctx context.Context, shopID int64) (*gamepb.ShopInfoReply, error) {
	req := &gamepb.ShopInfoRequest{ShopID: shopID}
	body, err := f.caller.Call(ctx, ShopServiceName, "ShopInfo", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.ShopInfoReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// BuyGoods purchases num units of a shop entry at the listed price.
func (f *FarmService) BuyGoods(ctx context.Context, goodsID, num, price int64) (*gamepb.BuyGoodsReply, error) {
	req := &gamepb.BuyGoodsRequest{GoodsID: goodsID, Num: num, Price: price}
	body, err := f.caller.Call(ctx, ShopServiceName, "BuyGoods", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.BuyGoodsReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// AnalyzeLands buckets the snapshot by required action, evaluated at
// nowSec (0 means time.Now).
//
// Own-farm maturity goes by phase only; Stealable carries friend-visit
// semantics and must not be consulted here.
func (f *FarmService) AnalyzeLands(lands []*gamepb.LandInfo, nowSec int64) *LandAnalysis {
	if nowSec <= 0 {
		nowSec = time.Now().Unix()
	}
	res := &LandAnalysis{}

	for _, land := range lands {
		if !land.Unlocked {
			res.LandsDetail = append(res.LandsDetail, &LandDetail{
				ID:        land.ID,
				Status:    LandLocked,
				PhaseName: "未解锁",
				Level:     land.Level,
			})
			if land.CouldUnlock {
				res.Unlockable = append(res.Unlockable, land.ID)
			}
			continue
		}

		if land.CouldUpgrade {
			res.Upgradable = append(res.Upgradable, land.ID)
		}

		if land.Plant == nil || len(land.Plant.Phases) == 0 {
			res.LandsDetail = append(res.LandsDetail, &LandDetail{
				ID:        land.ID,
				Unlocked:  true,
				Status:    LandEmpty,
				PhaseName: "空地",
				Level:     land.Level,
			})
			res.Empty = append(res.Empty, land.ID)
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

		needWater := plant.DryNum > 0
		needWeed := len(plant.WeedOwners) > 0
		needBug := len(plant.InsectOwners) > 0
		if needWater {
			res.NeedWater = append(res.NeedWater, land.ID)
		}
		if needWeed {
			res.NeedWeed = append(res.NeedWeed, land.ID)
		}
		if needBug {
			res.NeedBug = append(res.NeedBug, land.ID)
		}

		var status string
		var matureIn int64
		switch phaseVal {
		case gamepb.PhaseMature:
			status = LandHarvestable
			res.Harvestable = append(res.Harvestable, land.ID)
		case gamepb.PhaseDead:
			status = LandDead
			res.Dead = append(res.Dead, land.ID)
		default:
			status = LandGrowing
			res.Growing = append(res.Growing, land.ID)
			matureIn = matureLeftSec(plant, nowSec)
		}

		res.LandsDetail = append(res.LandsDetail, &LandDetail{
			ID:          land.ID,
			Unlocked:    true,
			Status:      status,
			PlantName:   f.config.PlantName(plant.ID),
			PhaseName:   phaseName,
			Level:       land.Level,
			NeedWater:   needWater,
			NeedWeed:    needWeed,
			NeedBug:     needBug,
			MatureInSec: matureIn,
		})
	}
	return res
}

// BuildLandsView renders the analysis for display.
func (f *FarmService) BuildLandsView(lands []*gamepb.LandInfo) *LandsView {
	analyzed := f.AnalyzeLands(lands, 0)
	return &LandsView{
		Lands: analyzed.LandsDetail,
		Summary: LandsSummary{
			Harvestable: len(analyzed.Harvestable),
			Growing:     len(analyzed.Growing),
			Empty:       len(analyzed.Empty),
			Dead:        len(analyzed.Dead),
			NeedWater:   len(analyzed.NeedWater),
			NeedWeed:    len(analyzed.NeedWeed),
			NeedBug:     len(analyzed.NeedBug),
		},
	}
}

// AvailableSeeds lists the seed shop with lock and stock flags for the
// player's level, sorted by (requiredLevel, seedId).
func (f *FarmService) AvailableSeeds(ctx context.Context, currentLevel int) ([]*SeedOption, error) {
	shop, err := f.ShopInfo(ctx, 2)
	if err != nil {
		return nil, err
	}
	rows := make([]*SeedOption, 0, len(shop.GoodsList))
	for _, goods := range shop.GoodsList {
		seedID := goods.ItemID
		requiredLevel := 0
		for _, cond := range goods.Conds {
			if cond.Type == gamepb.CondMinLevel {
				requiredLevel = int(cond.Param)
			}
		}
		rows = append(rows, &SeedOption{
			SeedID:        seedID,
			GoodsID:       goods.ID,
			Name:          f.config.PlantNameBySeed(seedID),
			Price:         goods.Price,
			RequiredLevel: requiredLevel,
			Locked:        !goods.Unlocked || currentLevel < requiredLevel,
			SoldOut:       goods.LimitCount > 0 && goods.BoughtNum >= goods.LimitCount,
			Image:         f.config.SeedImage(seedID),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RequiredLevel != rows[j].RequiredLevel {
			return rows[i].RequiredLevel < rows[j].RequiredLevel
		}
		return rows[i].SeedID < rows[j].SeedID
	})
	return rows, nil
}

// ChooseSeed picks what to plant. Preferred strategy honors the
// configured seed when buyable; ranking strategies walk the analytics
// order filtered by level; everything falls back to the highest-level
// unlockable seed.
func (f *FarmService) ChooseSeed(ctx context.Context, currentLevel int, strategy string, preferredSeedID int64) (*SeedOption, error) {
	seeds, err := f.AvailableSeeds(ctx, currentLevel)
	if err != nil {
		return nil, err
	}
	available := make([]*SeedOption, 0, len(seeds))
	for _, s := range seeds {
		if !s.Locked && !s.SoldOut {
			available = append(available, s)
		}
	}
	if len(available) == 0 {
		return nil, nil
	}

	if strategy == "" {
		strategy = StrategyPreferred
	}
	if strategy == StrategyPreferred && preferredSeedID > 0 {
		for _, row := range available {
			if row.SeedID == preferredSeedID {
				return row, nil
			}
		}
	}

	sortMap := map[string]string{
		StrategyMaxExp:        "exp",
		StrategyMaxFertExp:    "fert",
		StrategyMaxProfit:     "profit",
		StrategyMaxFertProfit: "fert_profit",
	}
	if sortBy, ok := sortMap[strategy]; ok {
		seedMap := make(map[int64]*SeedOption, len(available))
		for _, row := range available {
			seedMap[row.SeedID] = row
		}
		for _, row := range f.analytics.PlantRankings(sortBy) {
			if opt, ok := seedMap[row.SeedID]; ok && row.Level <= currentLevel {
				return opt, nil
			}
		}
	}

	best := available[0]
	for _, row := range available[1:] {
		if row.RequiredLevel > best.RequiredLevel ||
			(row.RequiredLevel == best.RequiredLevel && row.SeedID > best.SeedID) {
			best = row
		}
	}
	return best, nil
}

// currentPhase returns the phase with the greatest begin time not in
// the future, falling back to the first declared phase.
func currentPhase(plant *gamepb.PlantInfo, nowSec int64) *gamepb.PlantPhaseInfo {
	var candidate *gamepb.PlantPhaseInfo
	var candidateBegin int64 = -1
	for _, phase := range plant.Phases {
		begin := NormalizeTimeSec(phase.BeginTime)
		if begin <= 0 {
			continue
		}
		if begin <= nowSec && begin >= candidateBegin {
			candidate = phase
			candidateBegin = begin
		}
	}
	if candidate != nil {
		return candidate
	}
	if len(plant.Phases) > 0 {
		return plant.Phases[0]
	}
	return nil
}

// matureLeftSec returns seconds until the earliest mature phase.
func matureLeftSec(plant *gamepb.PlantInfo, nowSec int64) int64 {
	var matureAt int64
	for _, phase := range plant.Phases {
		if phase.Phase != gamepb.PhaseMature {
			continue
		}
		begin := NormalizeTimeSec(phase.BeginTime)
		if begin > 0 && (matureAt == 0 || begin < matureAt) {
			matureAt = begin
		}
	}
	if matureAt <= 0 {
		return 0
	}
	if left := matureAt - nowSec; left > 0 {
		return left
	}
	return 0
}

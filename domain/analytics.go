// Package domain implements the game-facing services: farm operations,
// friend visits, warehouse, tasks, login identity, invite reporting and
// pure crop analytics. Each service owns one gate service name and
// keeps RPC plumbing out of the runtime loops.
package domain

import (
	"fmt"
	"sort"
	"strings"

	"qq-farm-runtime/gameconf"
)

// PlantRanking is one crop scored for automation and display.
type PlantRanking struct {
	ID                            int64   `json:"id"`
	SeedID                        int64   `json:"seedId"`
	Name                          string  `json:"name"`
	Seasons                       int     `json:"seasons"`
	Level                         int     `json:"level"`
	GrowTime                      int64   `json:"growTime"`
	GrowTimeStr                   string  `json:"growTimeStr"`
	ReduceSec                     int64   `json:"reduceSec"`
	ReduceSecApplied              int64   `json:"reduceSecApplied"`
	ExpPerHour                    float64 `json:"expPerHour"`
	NormalFertilizerExpPerHour    float64 `json:"normalFertilizerExpPerHour"`
	GoldPerHour                   float64 `json:"goldPerHour"`
	ProfitPerHour                 float64 `json:"profitPerHour"`
	NormalFertilizerProfitPerHour float64 `json:"normalFertilizerProfitPerHour"`
	Income                        int64   `json:"income"`
	NetProfit                     int64   `json:"netProfit"`
	FruitID                       int64   `json:"fruitId"`
	FruitCount                    int64   `json:"fruitCount"`
	FruitPrice                    int64   `json:"fruitPrice"`
	SeedPrice                     int64   `json:"seedPrice"`
}

// Analytics ranks crops by yield per hour from the static tables.
type Analytics struct {
	config *gameconf.Store
}

func NewAnalytics(config *gameconf.Store) *Analytics {
	return &Analytics{config: config}
}

// PlantRankings scores every plantable crop and sorts by sortBy:
// exp, fert, gold, profit, fert_profit or level. Unknown keys fall
// back to exp.
//
// Only regular field crops count: plant ids with the "102" prefix and
// seed ids in [20000, 30000). Two-season crops stretch grow time by
// 1.5x but double exp and fruit yield, and fertilizer applies to both
// seasons.
func (a *Analytics) PlantRankings(sortBy string) []*PlantRanking {
	var rows []*PlantRanking
	for _, plant := range a.config.Plants() {
		if plant.ID <= 0 || plant.SeedID <= 0 {
			continue
		}
		if !strings.HasPrefix(fmt.Sprintf("%d", plant.ID), "102") {
			continue
		}
		if plant.SeedID < 20000 || plant.SeedID >= 30000 {
			continue
		}

		baseGrow := gameconf.ParseGrowTime(plant.GrowPhases)
		if baseGrow <= 0 {
			continue
		}
		seasons := plant.Seasons
		if seasons <= 0 {
			seasons = 1
		}
		isTwo := seasons == 2
		growTime := baseGrow
		if isTwo {
			growTime = int64(float64(baseGrow) * 1.5)
		}

		harvestExp := plant.Exp
		if isTwo {
			harvestExp *= 2
		}
		expPerHour := float64(harvestExp) / float64(max64(1, growTime)) * 3600

		reduceBase := gameconf.ParseFertilizerReduce(plant.GrowPhases)
		reduceApplied := reduceBase
		if isTwo {
			reduceApplied *= 2
		}
		fertTime := max64(1, growTime-reduceApplied)
		fertExpPerHour := float64(harvestExp) / float64(fertTime) * 3600

		var fruitID, fruitCount int64
		if plant.Fruit != nil {
			fruitID = plant.Fruit.ID
			fruitCount = plant.Fruit.Count
		}
		fruitPrice := a.config.FruitPrice(fruitID)
		seedPrice := a.config.SeedPrice(plant.SeedID)
		income := fruitCount * fruitPrice
		if isTwo {
			income *= 2
		}
		netProfit := income - seedPrice

		name := plant.Name
		if name == "" {
			name = fmt.Sprintf("作物%d", plant.SeedID)
		}

		rows = append(rows, &PlantRanking{
			ID:                            plant.ID,
			SeedID:                        plant.SeedID,
			Name:                          name,
			Seasons:                       seasons,
			Level:                         plant.LandLevelNeed,
			GrowTime:                      growTime,
			GrowTimeStr:                   formatSeconds(growTime),
			ReduceSec:                     reduceBase,
			ReduceSecApplied:              reduceApplied,
			ExpPerHour:                    round2(expPerHour),
			NormalFertilizerExpPerHour:    round2(fertExpPerHour),
			GoldPerHour:                   round2(float64(income) / float64(max64(1, growTime)) * 3600),
			ProfitPerHour:                 round2(float64(netProfit) / float64(max64(1, growTime)) * 3600),
			NormalFertilizerProfitPerHour: round2(float64(netProfit) / float64(fertTime) * 3600),
			Income:                        income,
			NetProfit:                     netProfit,
			FruitID:                       fruitID,
			FruitCount:                    fruitCount,
			FruitPrice:                    fruitPrice,
			SeedPrice:                     seedPrice,
		})
	}

	key := rankingKey(sortBy)
	sort.SliceStable(rows, func(i, j int) bool {
		return key(rows[i]) > key(rows[j])
	})
	return rows
}

func rankingKey(sortBy string) func(*PlantRanking) float64 {
	switch sortBy {
	case "fert":
		return func(r *PlantRanking) float64 { return r.NormalFertilizerExpPerHour }
	case "gold":
		return func(r *PlantRanking) float64 { return r.GoldPerHour }
	case "profit":
		return func(r *PlantRanking) float64 { return r.ProfitPerHour }
	case "fert_profit":
		return func(r *PlantRanking) float64 { return r.NormalFertilizerProfitPerHour }
	case "level":
		return func(r *PlantRanking) float64 { return float64(r.Level) }
	default:
		return func(r *PlantRanking) float64 { return r.ExpPerHour }
	}
}

func formatSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d秒", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d分%d秒", seconds/60, seconds%60)
	default:
		h := seconds / 3600
		m := (seconds % 3600) / 60
		if m > 0 {
			return fmt.Sprintf("%d时%d分", h, m)
		}
		return fmt.Sprintf("%d时", h)
	}
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

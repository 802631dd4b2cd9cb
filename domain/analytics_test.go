package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlantRankings(t *testing.T) {
	a := NewAnalytics(newTestConfig(t))

	rows := a.PlantRankings("exp")
	// The event crop (seed outside [20000,30000)) is filtered out.
	require.Len(t, rows, 2)

	// 胡萝卜: two seasons, 600s base grow -> 900s, exp 10 -> 20.
	carrot := rows[0]
	assert.Equal(t, int64(20002), carrot.SeedID)
	assert.Equal(t, 2, carrot.Seasons)
	assert.Equal(t, int64(900), carrot.GrowTime)
	assert.InDelta(t, 80.0, carrot.ExpPerHour, 0.01)
	assert.InDelta(t, 240.0, carrot.NormalFertilizerExpPerHour, 0.01)
	assert.Equal(t, int64(180), carrot.Income)
	assert.Equal(t, int64(130), carrot.NetProfit)

	radish := rows[1]
	assert.Equal(t, int64(20001), radish.SeedID)
	assert.Equal(t, int64(360), radish.GrowTime)
	assert.InDelta(t, 30.0, radish.ExpPerHour, 0.01)
	assert.Equal(t, int64(60), radish.Income)
	assert.Equal(t, int64(50), radish.NetProfit)
	assert.InDelta(t, 500.0, radish.ProfitPerHour, 0.01)
}

func TestPlantRankingsSortKeys(t *testing.T) {
	a := NewAnalytics(newTestConfig(t))

	byLevel := a.PlantRankings("level")
	assert.Equal(t, 3, byLevel[0].Level)

	byFertProfit := a.PlantRankings("fert_profit")
	assert.Equal(t, int64(20002), byFertProfit[0].SeedID)

	// Unknown keys fall back to exp ordering.
	unknown := a.PlantRankings("bogus")
	assert.Equal(t, int64(20002), unknown[0].SeedID)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "45秒", formatSeconds(45))
	assert.Equal(t, "2分30秒", formatSeconds(150))
	assert.Equal(t, "1时30分", formatSeconds(5400))
	assert.Equal(t, "2时", formatSeconds(7200))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.2349))
	assert.Equal(t, 1.24, round2(1.236))
	assert.Equal(t, -1.23, round2(-1.2349))
}

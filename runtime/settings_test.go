package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(v bool) *bool    { return &v }
func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func TestMergeSettingsNilPatch(t *testing.T) {
	base := DefaultAccountConfig()
	assert.Equal(t, base, MergeSettings(base, nil))
}

func TestMergeSettingsStrategy(t *testing.T) {
	base := DefaultAccountConfig()

	merged := MergeSettings(base, &SettingsPatch{Strategy: strPtr("profit")})
	assert.Equal(t, "profit", merged.Strategy)

	// Empty strategy resets to the default instead of blanking out.
	merged = MergeSettings(merged, &SettingsPatch{Strategy: strPtr("")})
	assert.Equal(t, "preferred", merged.Strategy)
}

func TestMergeSettingsSeedAliases(t *testing.T) {
	base := DefaultAccountConfig()

	merged := MergeSettings(base, &SettingsPatch{PreferredSeedID: int64Ptr(20002)})
	assert.Equal(t, int64(20002), merged.PreferredSeedID)

	// The legacy seedId key still works and wins when both are present.
	merged = MergeSettings(base, &SettingsPatch{
		PreferredSeedID: int64Ptr(20001),
		SeedID:          int64Ptr(20003),
	})
	assert.Equal(t, int64(20003), merged.PreferredSeedID)

	// Negative values clamp to zero (= auto).
	merged = MergeSettings(merged, &SettingsPatch{SeedID: int64Ptr(-5)})
	assert.Equal(t, int64(0), merged.PreferredSeedID)
}

func TestMergeSettingsAutomationPartial(t *testing.T) {
	base := DefaultAccountConfig()
	merged := MergeSettings(base, &SettingsPatch{Automation: &AutomationPatch{
		FriendSteal: boolPtr(false),
		Fertilizer:  strPtr("normal"),
	}})

	assert.False(t, merged.Automation.FriendSteal)
	assert.Equal(t, "normal", merged.Automation.Fertilizer)
	// Untouched keys keep their base values.
	assert.True(t, merged.Automation.Farm)
	assert.True(t, merged.Automation.Task)
}

func TestMergeSettingsIntervals(t *testing.T) {
	base := DefaultAccountConfig()
	merged := MergeSettings(base, &SettingsPatch{Intervals: &IntervalsPatch{
		FarmMin: intPtr(30),
		FarmMax: intPtr(90),
	}})

	assert.Equal(t, 30, merged.Intervals.FarmMin)
	assert.Equal(t, 90, merged.Intervals.FarmMax)
	assert.Equal(t, base.Intervals.FriendMin, merged.Intervals.FriendMin)
}

func TestMergeSettingsQuietHours(t *testing.T) {
	base := DefaultAccountConfig()
	merged := MergeSettings(base, &SettingsPatch{FriendQuietHours: &QuietHoursPatch{
		Enabled: boolPtr(true),
		Start:   strPtr("22:30"),
	}})

	assert.True(t, merged.FriendQuietHours.Enabled)
	assert.Equal(t, "22:30", merged.FriendQuietHours.Start)
	assert.Equal(t, "07:00", merged.FriendQuietHours.End)
}

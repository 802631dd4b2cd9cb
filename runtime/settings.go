package runtime

// Automation toggles the per-account background behaviors.
type Automation struct {
	Farm        bool   `json:"farm"`
	FarmPush    bool   `json:"farm_push"`
	LandUpgrade bool   `json:"land_upgrade"`
	Friend      bool   `json:"friend"`
	FriendSteal bool   `json:"friend_steal"`
	FriendHelp  bool   `json:"friend_help"`
	FriendBad   bool   `json:"friend_bad"`
	Task        bool   `json:"task"`
	Sell        bool   `json:"sell"`
	Fertilizer  string `json:"fertilizer"`
}

// Intervals bounds the randomized check periods, in seconds.
type Intervals struct {
	Farm      int `json:"farm"`
	Friend    int `json:"friend"`
	FarmMin   int `json:"farmMin"`
	FarmMax   int `json:"farmMax"`
	FriendMin int `json:"friendMin"`
	FriendMax int `json:"friendMax"`
}

// QuietHours suppresses friend automation inside a local-time window.
// A window crossing midnight (start > end) wraps.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// AccountConfig is the effective per-account configuration.
type AccountConfig struct {
	Automation       Automation `json:"automation"`
	Strategy         string     `json:"strategy"`
	PreferredSeedID  int64      `json:"preferredSeedId"`
	Intervals        Intervals  `json:"intervals"`
	FriendQuietHours QuietHours `json:"friendQuietHours"`
}

// DefaultAccountConfig returns the stock configuration new accounts
// start from.
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		Automation: Automation{
			Farm:        true,
			FarmPush:    true,
			LandUpgrade: true,
			Friend:      true,
			FriendSteal: true,
			FriendHelp:  true,
			FriendBad:   false,
			Task:        true,
			Sell:        true,
			Fertilizer:  "both",
		},
		Strategy:        "preferred",
		PreferredSeedID: 0,
		Intervals: Intervals{
			Farm:      2,
			Friend:    10,
			FarmMin:   2,
			FarmMax:   2,
			FriendMin: 10,
			FriendMax: 10,
		},
		FriendQuietHours: QuietHours{
			Enabled: false,
			Start:   "23:00",
			End:     "07:00",
		},
	}
}

// AutomationPatch carries partial automation updates; nil fields keep
// the current value.
type AutomationPatch struct {
	Farm        *bool   `json:"farm,omitempty"`
	FarmPush    *bool   `json:"farm_push,omitempty"`
	LandUpgrade *bool   `json:"land_upgrade,omitempty"`
	Friend      *bool   `json:"friend,omitempty"`
	FriendSteal *bool   `json:"friend_steal,omitempty"`
	FriendHelp  *bool   `json:"friend_help,omitempty"`
	FriendBad   *bool   `json:"friend_bad,omitempty"`
	Task        *bool   `json:"task,omitempty"`
	Sell        *bool   `json:"sell,omitempty"`
	Fertilizer  *string `json:"fertilizer,omitempty"`
}

type IntervalsPatch struct {
	Farm      *int `json:"farm,omitempty"`
	Friend    *int `json:"friend,omitempty"`
	FarmMin   *int `json:"farmMin,omitempty"`
	FarmMax   *int `json:"farmMax,omitempty"`
	FriendMin *int `json:"friendMin,omitempty"`
	FriendMax *int `json:"friendMax,omitempty"`
}

type QuietHoursPatch struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Start   *string `json:"start,omitempty"`
	End     *string `json:"end,omitempty"`
}

// SettingsPatch is a partial configuration update. SeedID is a legacy
// alias for PreferredSeedID.
type SettingsPatch struct {
	Strategy         *string          `json:"strategy,omitempty"`
	PreferredSeedID  *int64           `json:"preferredSeedId,omitempty"`
	SeedID           *int64           `json:"seedId,omitempty"`
	Automation       *AutomationPatch `json:"automation,omitempty"`
	Intervals        *IntervalsPatch  `json:"intervals,omitempty"`
	FriendQuietHours *QuietHoursPatch `json:"friendQuietHours,omitempty"`
}

// MergeSettings applies a patch on top of a base configuration.
func MergeSettings(base AccountConfig, patch *SettingsPatch) AccountConfig {
	result := base
	if patch == nil {
		return result
	}
	if patch.Strategy != nil {
		strategy := *patch.Strategy
		if strategy == "" {
			strategy = "preferred"
		}
		result.Strategy = strategy
	}
	if patch.PreferredSeedID != nil {
		result.PreferredSeedID = max64(0, *patch.PreferredSeedID)
	}
	if patch.SeedID != nil {
		result.PreferredSeedID = max64(0, *patch.SeedID)
	}
	if p := patch.Automation; p != nil {
		applyBool(&result.Automation.Farm, p.Farm)
		applyBool(&result.Automation.FarmPush, p.FarmPush)
		applyBool(&result.Automation.LandUpgrade, p.LandUpgrade)
		applyBool(&result.Automation.Friend, p.Friend)
		applyBool(&result.Automation.FriendSteal, p.FriendSteal)
		applyBool(&result.Automation.FriendHelp, p.FriendHelp)
		applyBool(&result.Automation.FriendBad, p.FriendBad)
		applyBool(&result.Automation.Task, p.Task)
		applyBool(&result.Automation.Sell, p.Sell)
		if p.Fertilizer != nil {
			result.Automation.Fertilizer = *p.Fertilizer
		}
	}
	if p := patch.Intervals; p != nil {
		applyInt(&result.Intervals.Farm, p.Farm)
		applyInt(&result.Intervals.Friend, p.Friend)
		applyInt(&result.Intervals.FarmMin, p.FarmMin)
		applyInt(&result.Intervals.FarmMax, p.FarmMax)
		applyInt(&result.Intervals.FriendMin, p.FriendMin)
		applyInt(&result.Intervals.FriendMax, p.FriendMax)
	}
	if p := patch.FriendQuietHours; p != nil {
		applyBool(&result.FriendQuietHours.Enabled, p.Enabled)
		if p.Start != nil {
			result.FriendQuietHours.Start = *p.Start
		}
		if p.End != nil {
			result.FriendQuietHours.End = *p.End
		}
	}
	return result
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

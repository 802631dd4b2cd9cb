// Package gameconf loads the static game data tables (levels, plants,
// items, seed images) shipped beside the runtime. All getters are
// side-effect free and return zero values for unknown ids.
package gameconf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Fruit is the harvest yield entry on a plant row.
type Fruit struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

// Plant is one crop row from Plant.json. GrowPhases encodes the phase
// durations as "phase:sec;phase:sec;...".
type Plant struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SeedID        int64  `json:"seed_id"`
	Exp           int64  `json:"exp"`
	GrowPhases    string `json:"grow_phases"`
	Seasons       int    `json:"seasons"`
	LandLevelNeed int    `json:"land_level_need"`
	Fruit         *Fruit `json:"fruit"`
}

// Item is one row from ItemInfo.json. Type 5 marks seeds.
type Item struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Price           int64  `json:"price"`
	Type            int    `json:"type"`
	Level           int    `json:"level"`
	InteractionType string `json:"interaction_type"`
}

type roleLevel struct {
	Level int   `json:"level"`
	Exp   int64 `json:"exp"`
}

// ExpProgress is the position inside the current level.
type ExpProgress struct {
	Current int64 `json:"current"`
	Needed  int64 `json:"needed"`
	Level   int   `json:"level"`
}

const seedItemType = 5

// Store holds the loaded tables. Safe for concurrent reads after Load.
type Store struct {
	plants       []*Plant
	plantByID    map[int64]*Plant
	plantBySeed  map[int64]*Plant
	plantByFruit map[int64]*Plant

	itemByID     map[int64]*Item
	seedItemByID map[int64]*Item

	levelExpTable map[int]int64
	seedImageByID map[int64]string
}

// Load reads the data tables under root. The preferred docs directory
// is "qqfarm文档"; any sibling whose name starts with "qqfarm" and
// contains gameConfig/ is accepted, tolerating re-encoded archive
// names. Missing files degrade to empty tables.
func Load(root string) *Store {
	s := &Store{
		plantByID:     make(map[int64]*Plant),
		plantBySeed:   make(map[int64]*Plant),
		plantByFruit:  make(map[int64]*Plant),
		itemByID:      make(map[int64]*Item),
		seedItemByID:  make(map[int64]*Item),
		levelExpTable: make(map[int]int64),
		seedImageByID: make(map[int64]string),
	}

	configDir := filepath.Join(resolveDocsRoot(root), "gameConfig")
	s.loadRoleLevel(filepath.Join(configDir, "RoleLevel.json"))
	s.loadPlants(filepath.Join(configDir, "Plant.json"))
	s.loadItems(filepath.Join(configDir, "ItemInfo.json"))
	s.loadSeedImages(filepath.Join(configDir, "seed_images_named"))
	return s
}

func resolveDocsRoot(root string) string {
	preferred := filepath.Join(root, "qqfarm文档")
	if _, err := os.Stat(preferred); err == nil {
		return preferred
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return preferred
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(entry.Name()), "qqfarm") {
			continue
		}
		candidate := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(candidate, "gameConfig")); err == nil {
			return candidate
		}
	}
	return preferred
}

func (s *Store) loadRoleLevel(path string) {
	var rows []roleLevel
	if !readJSON(path, &rows) {
		return
	}
	for _, row := range rows {
		if row.Level > 0 {
			s.levelExpTable[row.Level] = row.Exp
		}
	}
}

func (s *Store) loadPlants(path string) {
	var rows []*Plant
	if !readJSON(path, &rows) {
		return
	}
	s.plants = rows
	for _, plant := range rows {
		if plant.ID > 0 {
			s.plantByID[plant.ID] = plant
		}
		if plant.SeedID > 0 {
			s.plantBySeed[plant.SeedID] = plant
		}
		if plant.Fruit != nil && plant.Fruit.ID > 0 {
			s.plantByFruit[plant.Fruit.ID] = plant
		}
	}
}

func (s *Store) loadItems(path string) {
	var rows []*Item
	if !readJSON(path, &rows) {
		return
	}
	for _, row := range rows {
		if row.ID <= 0 {
			continue
		}
		s.itemByID[row.ID] = row
		if row.Type == seedItemType {
			s.seedItemByID[row.ID] = row
		}
	}
}

// loadSeedImages indexes "<seedId>_<asset>.png" files by seed id,
// keeping the first match per id.
func (s *Store) loadSeedImages(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		url := "/game-config/seed_images_named/" + name
		prefix, _, ok := strings.Cut(name, "_")
		if !ok || prefix == "" {
			continue
		}
		seedID := int64(0)
		if _, err := fmt.Sscanf(prefix, "%d", &seedID); err != nil || seedID <= 0 {
			continue
		}
		if _, exists := s.seedImageByID[seedID]; !exists {
			s.seedImageByID[seedID] = url
		}
	}
}

func readJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// LevelExpProgress returns the position within level given total exp.
// Unknown next levels assume a 100000-exp span so progress stays bounded.
func (s *Store) LevelExpProgress(level int, totalExp int64) ExpProgress {
	currentStart := s.levelExpTable[level]
	nextStart, ok := s.levelExpTable[level+1]
	if !ok {
		nextStart = currentStart + 100000
	}
	current := totalExp - currentStart
	if current < 0 {
		current = 0
	}
	needed := nextStart - currentStart
	if needed < 1 {
		needed = 1
	}
	return ExpProgress{Current: current, Needed: needed, Level: level}
}

// SeedUnlockLevel returns the player level required to buy a seed.
func (s *Store) SeedUnlockLevel(seedID int64) int {
	if item, ok := s.seedItemByID[seedID]; ok {
		return item.Level
	}
	return 1
}

// SeedPrice returns the shop price of a seed, 0 if unknown.
func (s *Store) SeedPrice(seedID int64) int64 {
	if item, ok := s.seedItemByID[seedID]; ok {
		return item.Price
	}
	return 0
}

// FruitPrice returns the sell price of a fruit item, 0 if unknown.
func (s *Store) FruitPrice(fruitID int64) int64 {
	if item, ok := s.itemByID[fruitID]; ok {
		return item.Price
	}
	return 0
}

// FruitName resolves a fruit id to its crop name, falling back to the
// raw item name and finally a placeholder.
func (s *Store) FruitName(fruitID int64) string {
	if plant, ok := s.plantByFruit[fruitID]; ok && plant.Name != "" {
		return plant.Name
	}
	if item, ok := s.itemByID[fruitID]; ok && item.Name != "" {
		return item.Name
	}
	return fmt.Sprintf("果实%d", fruitID)
}

// ItemByID returns the raw item row, nil if unknown.
func (s *Store) ItemByID(itemID int64) *Item {
	return s.itemByID[itemID]
}

// PlantExp returns the harvest exp of a plant.
func (s *Store) PlantExp(plantID int64) int64 {
	if plant, ok := s.plantByID[plantID]; ok {
		return plant.Exp
	}
	return 0
}

// PlantGrowTimeSec sums the phase durations of a plant.
func (s *Store) PlantGrowTimeSec(plantID int64) int64 {
	plant, ok := s.plantByID[plantID]
	if !ok {
		return 0
	}
	return ParseGrowTime(plant.GrowPhases)
}

// ParseGrowTime sums the seconds of a "phase:sec;..." schedule.
func ParseGrowTime(growPhases string) int64 {
	var total int64
	for _, seg := range strings.Split(growPhases, ";") {
		seg = strings.TrimSpace(seg)
		idx := strings.LastIndex(seg, ":")
		if idx < 0 {
			continue
		}
		var sec int64
		if _, err := fmt.Sscanf(seg[idx+1:], "%d", &sec); err == nil {
			total += sec
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// ParseFertilizerReduce returns the first phase duration, which is what
// one dose of normal fertilizer removes.
func ParseFertilizerReduce(growPhases string) int64 {
	first, _, _ := strings.Cut(growPhases, ";")
	idx := strings.LastIndex(first, ":")
	if idx < 0 {
		return 0
	}
	var sec int64
	if _, err := fmt.Sscanf(first[idx+1:], "%d", &sec); err != nil {
		return 0
	}
	return sec
}

// FormatGrowTime renders a duration the way the client shows it.
func FormatGrowTime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d秒", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d分钟", seconds/60)
	default:
		hours := seconds / 3600
		mins := (seconds % 3600) / 60
		if mins > 0 {
			return fmt.Sprintf("%d小时%d分钟", hours, mins)
		}
		return fmt.Sprintf("%d小时", hours)
	}
}

// SeedImage returns the web path of the seed's icon, "" if unknown.
func (s *Store) SeedImage(seedID int64) string {
	return s.seedImageByID[seedID]
}

// PlantBySeed returns the plant row grown from a seed, nil if unknown.
func (s *Store) PlantBySeed(seedID int64) *Plant {
	return s.plantBySeed[seedID]
}

// PlantNameBySeed resolves a seed id to its crop name.
func (s *Store) PlantNameBySeed(seedID int64) string {
	if plant, ok := s.plantBySeed[seedID]; ok && plant.Name != "" {
		return plant.Name
	}
	return fmt.Sprintf("种子%d", seedID)
}

// PlantName resolves a plant id to its name.
func (s *Store) PlantName(plantID int64) string {
	if plant, ok := s.plantByID[plantID]; ok && plant.Name != "" {
		return plant.Name
	}
	return fmt.Sprintf("植物%d", plantID)
}

// PlantByID returns the plant row, nil if unknown.
func (s *Store) PlantByID(plantID int64) *Plant {
	return s.plantByID[plantID]
}

// PlantByFruit returns the plant producing a fruit, nil if unknown.
func (s *Store) PlantByFruit(fruitID int64) *Plant {
	return s.plantByFruit[fruitID]
}

// Plants returns every loaded plant row.
func (s *Store) Plants() []*Plant {
	return s.plants
}

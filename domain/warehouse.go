package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"qq-farm-runtime/gameconf"
	"qq-farm-runtime/gamepb"
)

// sellBatchSize caps how many stacks one Sell request carries.
const sellBatchSize = 15

// BagItem is one merged warehouse row for display.
type BagItem struct {
	ID              int64  `json:"id"`
	Count           int64  `json:"count"`
	UID             int64  `json:"uid"`
	Name            string `json:"name"`
	Image           string `json:"image"`
	Category        string `json:"category"`
	ItemType        int    `json:"itemType"`
	Price           int64  `json:"price"`
	Level           int    `json:"level"`
	InteractionType string `json:"interactionType"`
	HoursText       string `json:"hoursText"`
}

// BagDetail is the rendered warehouse view.
type BagDetail struct {
	TotalKinds int       `json:"totalKinds"`
	Items      []*BagItem `json:"items"`
}

// SellResult summarizes one auto-sell pass.
type SellResult struct {
	SoldKinds  int   `json:"soldKinds"`
	GoldEarned int64 `json:"goldEarned"`
}

// DebugSellResult is the bag-before / sell / bag-after triple used by
// the debug command.
type DebugSellResult struct {
	Before *BagDetail  `json:"before"`
	Result *SellResult `json:"result"`
	After  *BagDetail  `json:"after"`
}

// WarehouseService wraps the item gate service: bag reads and fruit
// sales.
type WarehouseService struct {
	caller Caller
	config *gameconf.Store
}

func NewWarehouseService(caller Caller, config *gameconf.Store) *WarehouseService {
	return &WarehouseService{caller: caller, config: config}
}

// Bag fetches the raw inventory.
func (w *WarehouseService) Bag(ctx context.Context) (*gamepb.BagReply, error) {
	req := &gamepb.BagRequest{}
	body, err := w.caller.Call(ctx, ItemServiceName, "Bag", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.BagReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// SellItems sells the given stacks. Entries without a positive count
// are dropped.
func (w *WarehouseService) SellItems(ctx context.Context, items []*gamepb.Item) (*gamepb.SellReply, error) {
	payload := make([]*gamepb.Item, 0, len(items))
	for _, item := range items {
		if item.Count > 0 {
			payload = append(payload, item)
		}
	}
	req := &gamepb.SellRequest{Items: payload}
	body, err := w.caller.Call(ctx, ItemServiceName, "Sell", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.SellReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// BagItems flattens the bag reply.
func BagItems(reply *gamepb.BagReply) []*gamepb.Item {
	if reply == nil || reply.ItemBag == nil {
		return nil
	}
	return reply.ItemBag.Items
}

// BagDetail merges duplicate stacks, categorizes and sorts the bag for
// display (count desc, then id).
func (w *WarehouseService) BagDetail(ctx context.Context) (*BagDetail, error) {
	reply, err := w.Bag(ctx)
	if err != nil {
		return nil, err
	}

	order := make([]int64, 0, 16)
	merged := make(map[int64]*BagItem)
	for _, item := range BagItems(reply) {
		if item.ID <= 0 || item.Count <= 0 {
			continue
		}
		row, ok := merged[item.ID]
		if !ok {
			row = w.buildItemRow(item.ID)
			merged[item.ID] = row
			order = append(order, item.ID)
		}
		row.Count += item.Count
	}

	items := make([]*BagItem, 0, len(order))
	for _, id := range order {
		items = append(items, merged[id])
	}
	for _, row := range items {
		// The fertilizer bucket stores seconds; render tenth-hours.
		if row.InteractionType == "fertilizerbucket" && row.Count > 0 {
			hoursFloor := float64(int(float64(row.Count)/3600.0*10)) / 10
			row.HoursText = fmt.Sprintf("%.1f小时", hoursFloor)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].ID < items[j].ID
	})
	return &BagDetail{TotalKinds: len(items), Items: items}, nil
}

// SellAllFruits sells every fruit stack in batches of 15, falling back
// to stack-by-stack when a batch fails. Only stacks with a uid can be
// sold. Gold earned is derived from the replies' get_items.
func (w *WarehouseService) SellAllFruits(ctx context.Context) (*SellResult, error) {
	bag, err := w.Bag(ctx)
	if err != nil {
		return nil, err
	}
	var targets []*gamepb.Item
	for _, item := range BagItems(bag) {
		if item.Count <= 0 || item.UID <= 0 {
			continue
		}
		if w.isFruitItem(item.ID) {
			targets = append(targets, item)
		}
	}
	if len(targets) == 0 {
		return &SellResult{}, nil
	}

	result := &SellResult{}
	for idx := 0; idx < len(targets); idx += sellBatchSize {
		end := idx + sellBatchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[idx:end]
		if reply, err := w.SellItems(ctx, batch); err == nil {
			result.SoldKinds += len(batch)
			result.GoldEarned += deriveGoldGain(reply)
		} else {
			for _, row := range batch {
				reply, err := w.SellItems(ctx, []*gamepb.Item{row})
				if err != nil {
					continue
				}
				result.SoldKinds++
				result.GoldEarned += deriveGoldGain(reply)
				if !sleepCtx(ctx, 100*time.Millisecond) {
					break
				}
			}
		}
		if end < len(targets) {
			if !sleepCtx(ctx, 300*time.Millisecond) {
				break
			}
		}
	}
	if result.GoldEarned < 0 {
		result.GoldEarned = 0
	}
	return result, nil
}

// DebugSellFruits captures bag state around a sell pass.
func (w *WarehouseService) DebugSellFruits(ctx context.Context) (*DebugSellResult, error) {
	before, err := w.BagDetail(ctx)
	if err != nil {
		return nil, err
	}
	sold, err := w.SellAllFruits(ctx)
	if err != nil {
		return nil, err
	}
	after, err := w.BagDetail(ctx)
	if err != nil {
		return nil, err
	}
	return &DebugSellResult{Before: before, Result: sold, After: after}, nil
}

func (w *WarehouseService) buildItemRow(itemID int64) *BagItem {
	var name, interactionType string
	var itemType, level int
	var price int64
	if item := w.config.ItemByID(itemID); item != nil {
		name = item.Name
		itemType = item.Type
		price = item.Price
		level = item.Level
		interactionType = item.InteractionType
	}

	category := "item"
	switch {
	case itemID == gamepb.ItemGold || itemID == gamepb.ItemGoldReward:
		name = "金币"
		category = "gold"
	case itemID == gamepb.ItemExp:
		name = "经验"
		category = "exp"
	case w.isFruitItem(itemID):
		if name == "" {
			name = w.config.FruitName(itemID) + "果实"
		}
		category = "fruit"
	case w.config.PlantBySeed(itemID) != nil:
		if name == "" {
			name = w.config.PlantNameBySeed(itemID) + "种子"
		}
		category = "seed"
	}
	if name == "" {
		name = fmt.Sprintf("物品%d", itemID)
	}

	return &BagItem{
		ID:              itemID,
		Name:            name,
		Image:           w.config.SeedImage(itemID),
		Category:        category,
		ItemType:        itemType,
		Price:           price,
		Level:           level,
		InteractionType: interactionType,
	}
}

func (w *WarehouseService) isFruitItem(itemID int64) bool {
	return w.config.PlantByFruit(itemID) != nil
}

// deriveGoldGain sums the gold items in a sell reply.
func deriveGoldGain(reply *gamepb.SellReply) int64 {
	var gold int64
	for _, item := range reply.GetItems {
		if item.ID == gamepb.ItemGold || item.ID == gamepb.ItemGoldReward {
			if item.Count > 0 {
				gold += item.Count
			}
		}
	}
	return gold
}

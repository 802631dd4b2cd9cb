package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// Goods purchase condition types. MIN_LEVEL gates a shop entry behind a
// player level.
const CondMinLevel int32 = 1

// GoodsCond is one purchase condition on a shop entry.
type GoodsCond struct {
	Type  int32
	Param int64
}

func (m *GoodsCond) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.Type)
	b = appendInt64(b, 2, m.Param)
	return b
}

func (m *GoodsCond) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Type = val.int32()
		case 2:
			m.Param = val.int64()
		}
		return nil
	})
}

// Goods is one shop entry. ItemID is the item granted on purchase; for
// the seed shop that is the seed id.
type Goods struct {
	ID         int64
	ItemID     int64
	Price      int64
	Unlocked   bool
	LimitCount int32
	BoughtNum  int32
	Conds      []*GoodsCond
}

func (m *Goods) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ID)
	b = appendInt64(b, 2, m.ItemID)
	b = appendInt64(b, 3, m.Price)
	b = appendBool(b, 4, m.Unlocked)
	b = appendInt32(b, 5, m.LimitCount)
	b = appendInt32(b, 6, m.BoughtNum)
	for _, c := range m.Conds {
		b = appendMessage(b, 7, c)
	}
	return b
}

func (m *Goods) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ID = val.int64()
		case 2:
			m.ItemID = val.int64()
		case 3:
			m.Price = val.int64()
		case 4:
			m.Unlocked = val.bool()
		case 5:
			m.LimitCount = val.int32()
		case 6:
			m.BoughtNum = val.int32()
		case 7:
			c := &GoodsCond{}
			if err := c.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Conds = append(m.Conds, c)
		}
		return nil
	})
}

type ShopInfoRequest struct {
	ShopID int64
}

func (m *ShopInfoRequest) Marshal() []byte {
	return appendInt64(nil, 1, m.ShopID)
}

func (m *ShopInfoRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.ShopID = val.int64()
		}
		return nil
	})
}

type ShopInfoReply struct {
	GoodsList []*Goods
}

func (m *ShopInfoReply) Marshal() []byte {
	var b []byte
	for _, g := range m.GoodsList {
		b = appendMessage(b, 1, g)
	}
	return b
}

func (m *ShopInfoReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			g := &Goods{}
			if err := g.Unmarshal(val.raw); err != nil {
				return err
			}
			m.GoodsList = append(m.GoodsList, g)
		}
		return nil
	})
}

type BuyGoodsRequest struct {
	GoodsID int64
	Num     int64
	Price   int64
}

func (m *BuyGoodsRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.GoodsID)
	b = appendInt64(b, 2, m.Num)
	b = appendInt64(b, 3, m.Price)
	return b
}

func (m *BuyGoodsRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.GoodsID = val.int64()
		case 2:
			m.Num = val.int64()
		case 3:
			m.Price = val.int64()
		}
		return nil
	})
}

type BuyGoodsReply struct {
	GetItems []*Item
}

func (m *BuyGoodsReply) Marshal() []byte {
	var b []byte
	for _, it := range m.GetItems {
		b = appendMessage(b, 1, it)
	}
	return b
}

func (m *BuyGoodsReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			it := &Item{}
			if err := it.Unmarshal(val.raw); err != nil {
				return err
			}
			m.GetItems = append(m.GetItems, it)
		}
		return nil
	})
}

package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// Well-known item ids.
const (
	ItemGold              int64 = 1
	ItemGoldReward        int64 = 1001
	ItemCoupon            int64 = 1002
	ItemFertilizer        int64 = 1011
	ItemOrganicFertilizer int64 = 1012
	ItemExp               int64 = 1101
)

// ItemBag is the warehouse inventory.
type ItemBag struct {
	Items []*Item
}

func (m *ItemBag) Marshal() []byte {
	var b []byte
	for _, it := range m.Items {
		b = appendMessage(b, 1, it)
	}
	return b
}

func (m *ItemBag) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			it := &Item{}
			if err := it.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Items = append(m.Items, it)
		}
		return nil
	})
}

type BagRequest struct{}

func (m *BagRequest) Marshal() []byte        { return nil }
func (m *BagRequest) Unmarshal([]byte) error { return nil }

type BagReply struct {
	ItemBag *ItemBag
}

func (m *BagReply) Marshal() []byte {
	var b []byte
	if m.ItemBag != nil {
		b = appendMessage(b, 1, m.ItemBag)
	}
	return b
}

func (m *BagReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.ItemBag = &ItemBag{}
			return m.ItemBag.Unmarshal(val.raw)
		}
		return nil
	})
}

// SellRequest sells warehouse stacks; each entry carries the stack uid
// and the count to sell.
type SellRequest struct {
	Items []*Item
}

func (m *SellRequest) Marshal() []byte {
	var b []byte
	for _, it := range m.Items {
		b = appendMessage(b, 1, it)
	}
	return b
}

func (m *SellRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			it := &Item{}
			if err := it.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Items = append(m.Items, it)
		}
		return nil
	})
}

type SellReply struct {
	GetItems []*Item
}

func (m *SellReply) Marshal() []byte {
	var b []byte
	for _, it := range m.GetItems {
		b = appendMessage(b, 1, it)
	}
	return b
}

func (m *SellReply) Unmarshal(data []byte) error {
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

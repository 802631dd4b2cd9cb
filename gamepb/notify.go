package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// KickoutNotify is pushed when the gate terminates the session, usually
// because the account logged in elsewhere.
type KickoutNotify struct {
	ReasonMessage string
}

func (m *KickoutNotify) Marshal() []byte {
	return appendString(nil, 1, m.ReasonMessage)
}

func (m *KickoutNotify) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.ReasonMessage = val.string()
		}
		return nil
	})
}

// ItemDelta is one inventory change row: the new item state plus the
// signed change amount.
type ItemDelta struct {
	Item  *Item
	Delta int64
}

func (m *ItemDelta) Marshal() []byte {
	var b []byte
	if m.Item != nil {
		b = appendMessage(b, 1, m.Item)
	}
	b = appendInt64(b, 2, m.Delta)
	return b
}

func (m *ItemDelta) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Item = &Item{}
			return m.Item.Unmarshal(val.raw)
		case 2:
			m.Delta = val.int64()
		}
		return nil
	})
}

type ItemNotify struct {
	Items []*ItemDelta
}

func (m *ItemNotify) Marshal() []byte {
	var b []byte
	for _, d := range m.Items {
		b = appendMessage(b, 1, d)
	}
	return b
}

func (m *ItemNotify) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			d := &ItemDelta{}
			if err := d.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Items = append(m.Items, d)
		}
		return nil
	})
}

// BasicNotify pushes refreshed player basics (level, gold, exp).
type BasicNotify struct {
	Basic *UserBasic
}

func (m *BasicNotify) Marshal() []byte {
	var b []byte
	if m.Basic != nil {
		b = appendMessage(b, 1, m.Basic)
	}
	return b
}

func (m *BasicNotify) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.Basic = &UserBasic{}
			return m.Basic.Unmarshal(val.raw)
		}
		return nil
	})
}

type TaskInfoNotify struct {
	TaskInfo *TaskInfo
}

func (m *TaskInfoNotify) Marshal() []byte {
	var b []byte
	if m.TaskInfo != nil {
		b = appendMessage(b, 1, m.TaskInfo)
	}
	return b
}

func (m *TaskInfoNotify) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.TaskInfo = &TaskInfo{}
			return m.TaskInfo.Unmarshal(val.raw)
		}
		return nil
	})
}

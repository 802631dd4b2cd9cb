package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// FriendPlantBrief summarizes what can be done on a friend's farm.
type FriendPlantBrief struct {
	StealPlantNum int32
	DryNum        int32
	WeedNum       int32
	InsectNum     int32
}

func (m *FriendPlantBrief) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.StealPlantNum)
	b = appendInt32(b, 2, m.DryNum)
	b = appendInt32(b, 3, m.WeedNum)
	b = appendInt32(b, 4, m.InsectNum)
	return b
}

func (m *FriendPlantBrief) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.StealPlantNum = val.int32()
		case 2:
			m.DryNum = val.int32()
		case 3:
			m.WeedNum = val.int32()
		case 4:
			m.InsectNum = val.int32()
		}
		return nil
	})
}

type GameFriend struct {
	Gid    int64
	Name   string
	Remark string
	Plant  *FriendPlantBrief
}

func (m *GameFriend) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.Gid)
	b = appendString(b, 2, m.Name)
	b = appendString(b, 3, m.Remark)
	if m.Plant != nil {
		b = appendMessage(b, 4, m.Plant)
	}
	return b
}

func (m *GameFriend) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Gid = val.int64()
		case 2:
			m.Name = val.string()
		case 3:
			m.Remark = val.string()
		case 4:
			m.Plant = &FriendPlantBrief{}
			return m.Plant.Unmarshal(val.raw)
		}
		return nil
	})
}

type GetAllRequest struct{}

func (m *GetAllRequest) Marshal() []byte        { return nil }
func (m *GetAllRequest) Unmarshal([]byte) error { return nil }

type GetAllReply struct {
	GameFriends []*GameFriend
}

func (m *GetAllReply) Marshal() []byte {
	var b []byte
	for _, f := range m.GameFriends {
		b = appendMessage(b, 1, f)
	}
	return b
}

func (m *GetAllReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			f := &GameFriend{}
			if err := f.Unmarshal(val.raw); err != nil {
				return err
			}
			m.GameFriends = append(m.GameFriends, f)
		}
		return nil
	})
}

type FriendApplication struct {
	Gid int64
}

func (m *FriendApplication) Marshal() []byte {
	return appendInt64(nil, 1, m.Gid)
}

func (m *FriendApplication) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.Gid = val.int64()
		}
		return nil
	})
}

type GetApplicationsRequest struct{}

func (m *GetApplicationsRequest) Marshal() []byte        { return nil }
func (m *GetApplicationsRequest) Unmarshal([]byte) error { return nil }

type GetApplicationsReply struct {
	Applications []*FriendApplication
}

func (m *GetApplicationsReply) Marshal() []byte {
	var b []byte
	for _, a := range m.Applications {
		b = appendMessage(b, 1, a)
	}
	return b
}

func (m *GetApplicationsReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			a := &FriendApplication{}
			if err := a.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Applications = append(m.Applications, a)
		}
		return nil
	})
}

type AcceptFriendsRequest struct {
	FriendGids []int64
}

func (m *AcceptFriendsRequest) Marshal() []byte {
	return appendPackedInt64(nil, 1, m.FriendGids)
}

func (m *AcceptFriendsRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		if num == 1 {
			m.FriendGids, err = consumeRepeatedInt64(m.FriendGids, typ, val)
		}
		return err
	})
}

type AcceptFriendsReply struct{}

func (m *AcceptFriendsReply) Marshal() []byte        { return nil }
func (m *AcceptFriendsReply) Unmarshal([]byte) error { return nil }

// FriendApplicationReceivedNotify is pushed when someone requests
// friendship; the runtime auto-accepts.
type FriendApplicationReceivedNotify struct {
	Applications []*FriendApplication
}

func (m *FriendApplicationReceivedNotify) Marshal() []byte {
	var b []byte
	for _, a := range m.Applications {
		b = appendMessage(b, 1, a)
	}
	return b
}

func (m *FriendApplicationReceivedNotify) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			a := &FriendApplication{}
			if err := a.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Applications = append(m.Applications, a)
		}
		return nil
	})
}

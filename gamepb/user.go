package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// DeviceInfo mirrors what the stock client reports at login.
type DeviceInfo struct {
	ClientVersion string
	SysSoftware   string
	Network       string
	Memory        int64
	DeviceID      string
}

func (m *DeviceInfo) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ClientVersion)
	b = appendString(b, 2, m.SysSoftware)
	b = appendString(b, 3, m.Network)
	b = appendInt64(b, 4, m.Memory)
	b = appendString(b, 5, m.DeviceID)
	return b
}

func (m *DeviceInfo) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ClientVersion = val.string()
		case 2:
			m.SysSoftware = val.string()
		case 3:
			m.Network = val.string()
		case 4:
			m.Memory = val.int64()
		case 5:
			m.DeviceID = val.string()
		}
		return nil
	})
}

// ReportData is the mini-game attribution blob sent with login.
type ReportData struct {
	Callback        string
	CdExtendInfo    string
	ClickID         string
	ClueToken       string
	MinigameChannel string
	MinigamePlatid  int32
	ReqID           string
	Trackid         string
}

func (m *ReportData) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Callback)
	b = appendString(b, 2, m.CdExtendInfo)
	b = appendString(b, 3, m.ClickID)
	b = appendString(b, 4, m.ClueToken)
	b = appendString(b, 5, m.MinigameChannel)
	b = appendInt32(b, 6, m.MinigamePlatid)
	b = appendString(b, 7, m.ReqID)
	b = appendString(b, 8, m.Trackid)
	return b
}

func (m *ReportData) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Callback = val.string()
		case 2:
			m.CdExtendInfo = val.string()
		case 3:
			m.ClickID = val.string()
		case 4:
			m.ClueToken = val.string()
		case 5:
			m.MinigameChannel = val.string()
		case 6:
			m.MinigamePlatid = val.int32()
		case 7:
			m.ReqID = val.string()
		case 8:
			m.Trackid = val.string()
		}
		return nil
	})
}

type LoginRequest struct {
	SharerID     int64
	SharerOpenID string
	DeviceInfo   *DeviceInfo
	ShareCfgID   int64
	SceneID      string
	ReportData   *ReportData
}

func (m *LoginRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.SharerID)
	b = appendString(b, 2, m.SharerOpenID)
	if m.DeviceInfo != nil {
		b = appendMessage(b, 3, m.DeviceInfo)
	}
	b = appendInt64(b, 4, m.ShareCfgID)
	b = appendString(b, 5, m.SceneID)
	if m.ReportData != nil {
		b = appendMessage(b, 6, m.ReportData)
	}
	return b
}

func (m *LoginRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.SharerID = val.int64()
		case 2:
			m.SharerOpenID = val.string()
		case 3:
			m.DeviceInfo = &DeviceInfo{}
			return m.DeviceInfo.Unmarshal(val.raw)
		case 4:
			m.ShareCfgID = val.int64()
		case 5:
			m.SceneID = val.string()
		case 6:
			m.ReportData = &ReportData{}
			return m.ReportData.Unmarshal(val.raw)
		}
		return nil
	})
}

// UserBasic is the player snapshot carried by login replies and basic
// notifies.
type UserBasic struct {
	Gid   int64
	Name  string
	Level int32
	Gold  int64
	Exp   int64
}

func (m *UserBasic) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.Gid)
	b = appendString(b, 2, m.Name)
	b = appendInt32(b, 3, m.Level)
	b = appendInt64(b, 4, m.Gold)
	b = appendInt64(b, 5, m.Exp)
	return b
}

func (m *UserBasic) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Gid = val.int64()
		case 2:
			m.Name = val.string()
		case 3:
			m.Level = val.int32()
		case 4:
			m.Gold = val.int64()
		case 5:
			m.Exp = val.int64()
		}
		return nil
	})
}

type LoginReply struct {
	Basic *UserBasic
}

func (m *LoginReply) Marshal() []byte {
	var b []byte
	if m.Basic != nil {
		b = appendMessage(b, 1, m.Basic)
	}
	return b
}

func (m *LoginReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.Basic = &UserBasic{}
			return m.Basic.Unmarshal(val.raw)
		}
		return nil
	})
}

type HeartbeatRequest struct {
	Gid           int64
	ClientVersion string
}

func (m *HeartbeatRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.Gid)
	b = appendString(b, 2, m.ClientVersion)
	return b
}

func (m *HeartbeatRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Gid = val.int64()
		case 2:
			m.ClientVersion = val.string()
		}
		return nil
	})
}

type HeartbeatReply struct{}

func (m *HeartbeatReply) Marshal() []byte        { return nil }
func (m *HeartbeatReply) Unmarshal([]byte) error { return nil }

type ReportArkClickRequest struct {
	SharerID     int64
	SharerOpenID string
	ShareCfgID   int64
	SceneID      string
}

func (m *ReportArkClickRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.SharerID)
	b = appendString(b, 2, m.SharerOpenID)
	b = appendInt64(b, 3, m.ShareCfgID)
	b = appendString(b, 4, m.SceneID)
	return b
}

func (m *ReportArkClickRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.SharerID = val.int64()
		case 2:
			m.SharerOpenID = val.string()
		case 3:
			m.ShareCfgID = val.int64()
		case 4:
			m.SceneID = val.string()
		}
		return nil
	})
}

type ReportArkClickReply struct{}

func (m *ReportArkClickReply) Marshal() []byte        { return nil }
func (m *ReportArkClickReply) Unmarshal([]byte) error { return nil }

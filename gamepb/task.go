package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// ActiveRewardDone marks a daily-activity reward point as claimable.
const ActiveRewardDone int32 = 2

type Task struct {
	ID            int64
	Desc          string
	Progress      int64
	TotalProgress int64
	IsClaimed     bool
	IsUnlocked    bool
	ShareMultiple int32
	Rewards       []*Item
}

func (m *Task) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ID)
	b = appendString(b, 2, m.Desc)
	b = appendInt64(b, 3, m.Progress)
	b = appendInt64(b, 4, m.TotalProgress)
	b = appendBool(b, 5, m.IsClaimed)
	b = appendBool(b, 6, m.IsUnlocked)
	b = appendInt32(b, 7, m.ShareMultiple)
	for _, r := range m.Rewards {
		b = appendMessage(b, 8, r)
	}
	return b
}

func (m *Task) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ID = val.int64()
		case 2:
			m.Desc = val.string()
		case 3:
			m.Progress = val.int64()
		case 4:
			m.TotalProgress = val.int64()
		case 5:
			m.IsClaimed = val.bool()
		case 6:
			m.IsUnlocked = val.bool()
		case 7:
			m.ShareMultiple = val.int32()
		case 8:
			r := &Item{}
			if err := r.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Rewards = append(m.Rewards, r)
		}
		return nil
	})
}

type ActiveReward struct {
	PointID int64
	Status  int32
}

func (m *ActiveReward) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.PointID)
	b = appendInt32(b, 2, m.Status)
	return b
}

func (m *ActiveReward) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.PointID = val.int64()
		case 2:
			m.Status = val.int32()
		}
		return nil
	})
}

// Active is one daily-activity track with its reward points.
type Active struct {
	Type    int32
	Rewards []*ActiveReward
}

func (m *Active) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.Type)
	for _, r := range m.Rewards {
		b = appendMessage(b, 2, r)
	}
	return b
}

func (m *Active) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Type = val.int32()
		case 2:
			r := &ActiveReward{}
			if err := r.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Rewards = append(m.Rewards, r)
		}
		return nil
	})
}

type TaskInfo struct {
	Tasks       []*Task
	DailyTasks  []*Task
	GrowthTasks []*Task
	Actives     []*Active
}

func (m *TaskInfo) Marshal() []byte {
	var b []byte
	for _, t := range m.Tasks {
		b = appendMessage(b, 1, t)
	}
	for _, t := range m.DailyTasks {
		b = appendMessage(b, 2, t)
	}
	for _, t := range m.GrowthTasks {
		b = appendMessage(b, 3, t)
	}
	for _, a := range m.Actives {
		b = appendMessage(b, 4, a)
	}
	return b
}

func (m *TaskInfo) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1, 2, 3:
			t := &Task{}
			if err := t.Unmarshal(val.raw); err != nil {
				return err
			}
			switch num {
			case 1:
				m.Tasks = append(m.Tasks, t)
			case 2:
				m.DailyTasks = append(m.DailyTasks, t)
			case 3:
				m.GrowthTasks = append(m.GrowthTasks, t)
			}
		case 4:
			a := &Active{}
			if err := a.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Actives = append(m.Actives, a)
		}
		return nil
	})
}

type TaskInfoRequest struct{}

func (m *TaskInfoRequest) Marshal() []byte        { return nil }
func (m *TaskInfoRequest) Unmarshal([]byte) error { return nil }

type TaskInfoReply struct {
	TaskInfo *TaskInfo
}

func (m *TaskInfoReply) Marshal() []byte {
	var b []byte
	if m.TaskInfo != nil {
		b = appendMessage(b, 1, m.TaskInfo)
	}
	return b
}

func (m *TaskInfoReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.TaskInfo = &TaskInfo{}
			return m.TaskInfo.Unmarshal(val.raw)
		}
		return nil
	})
}

type ClaimTaskRewardRequest struct {
	ID       int64
	DoShared bool
}

func (m *ClaimTaskRewardRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ID)
	b = appendBool(b, 2, m.DoShared)
	return b
}

func (m *ClaimTaskRewardRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ID = val.int64()
		case 2:
			m.DoShared = val.bool()
		}
		return nil
	})
}

type ClaimTaskRewardReply struct {
	Items []*Item
}

func (m *ClaimTaskRewardReply) Marshal() []byte {
	var b []byte
	for _, it := range m.Items {
		b = appendMessage(b, 1, it)
	}
	return b
}

func (m *ClaimTaskRewardReply) Unmarshal(data []byte) error {
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

type ClaimDailyRewardRequest struct {
	Type     int32
	PointIds []int64
}

func (m *ClaimDailyRewardRequest) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.Type)
	b = appendPackedInt64(b, 2, m.PointIds)
	return b
}

func (m *ClaimDailyRewardRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		switch num {
		case 1:
			m.Type = val.int32()
		case 2:
			m.PointIds, err = consumeRepeatedInt64(m.PointIds, typ, val)
		}
		return err
	})
}

type ClaimDailyRewardReply struct {
	Items []*Item
}

func (m *ClaimDailyRewardReply) Marshal() []byte {
	var b []byte
	for _, it := range m.Items {
		b = appendMessage(b, 1, it)
	}
	return b
}

func (m *ClaimDailyRewardReply) Unmarshal(data []byte) error {
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

package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// EnterReasonFriend marks a visit as a friend-farm visit.
const EnterReasonFriend int32 = 1

type EnterRequest struct {
	HostGid int64
	Reason  int32
}

func (m *EnterRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.HostGid)
	b = appendInt32(b, 2, m.Reason)
	return b
}

func (m *EnterRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.HostGid = val.int64()
		case 2:
			m.Reason = val.int32()
		}
		return nil
	})
}

type EnterReply struct {
	Lands []*LandInfo
}

func (m *EnterReply) Marshal() []byte {
	var b []byte
	for _, l := range m.Lands {
		b = appendMessage(b, 1, l)
	}
	return b
}

func (m *EnterReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			l := &LandInfo{}
			if err := l.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Lands = append(m.Lands, l)
		}
		return nil
	})
}

type LeaveRequest struct {
	HostGid int64
}

func (m *LeaveRequest) Marshal() []byte {
	return appendInt64(nil, 1, m.HostGid)
}

func (m *LeaveRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.HostGid = val.int64()
		}
		return nil
	})
}

type LeaveReply struct{}

func (m *LeaveReply) Marshal() []byte        { return nil }
func (m *LeaveReply) Unmarshal([]byte) error { return nil }

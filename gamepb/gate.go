package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// Gate frame message types.
const (
	MessageTypeRequest int32 = 1
	MessageTypeReply   int32 = 2
	MessageTypeEvent   int32 = 3
)

// Meta is the routing envelope of every gate frame.
type Meta struct {
	ServiceName  string
	MethodName   string
	MessageType  int32
	ClientSeq    int64
	ServerSeq    int64
	ErrorCode    int32
	ErrorMessage string
}

func (m *Meta) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.MethodName)
	b = appendInt32(b, 3, m.MessageType)
	b = appendInt64(b, 4, m.ClientSeq)
	b = appendInt64(b, 5, m.ServerSeq)
	b = appendInt32(b, 6, m.ErrorCode)
	b = appendString(b, 7, m.ErrorMessage)
	return b
}

func (m *Meta) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ServiceName = val.string()
		case 2:
			m.MethodName = val.string()
		case 3:
			m.MessageType = val.int32()
		case 4:
			m.ClientSeq = val.int64()
		case 5:
			m.ServerSeq = val.int64()
		case 6:
			m.ErrorCode = val.int32()
		case 7:
			m.ErrorMessage = val.string()
		}
		return nil
	})
}

// Message is one gate frame: routing meta plus an opaque payload.
type Message struct {
	Meta *Meta
	Body []byte
}

func (m *Message) Marshal() []byte {
	var b []byte
	if m.Meta != nil {
		b = appendMessage(b, 1, m.Meta)
	}
	b = appendBytes(b, 2, m.Body)
	return b
}

func (m *Message) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Meta = &Meta{}
			return m.Meta.Unmarshal(val.raw)
		case 2:
			m.Body = val.bytes()
		}
		return nil
	})
}

// EventMessage is the body of a gate event frame: a notify type name
// plus the encoded notify payload.
type EventMessage struct {
	MessageType string
	Body        []byte
}

func (m *EventMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.MessageType)
	b = appendBytes(b, 2, m.Body)
	return b
}

func (m *EventMessage) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.MessageType = val.string()
		case 2:
			m.Body = val.bytes()
		}
		return nil
	})
}

// Item is the shared item tuple (bag rows, reward rows, sell targets).
type Item struct {
	ID    int64
	Count int64
	UID   int64
}

func (m *Item) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ID)
	b = appendInt64(b, 2, m.Count)
	b = appendInt64(b, 3, m.UID)
	return b
}

func (m *Item) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ID = val.int64()
		case 2:
			m.Count = val.int64()
		case 3:
			m.UID = val.int64()
		}
		return nil
	})
}

package gamepb

import "google.golang.org/protobuf/encoding/protowire"

// Plant phase codes used by the runtime. The schema defines more growth
// phases between seed and mature; only these two drive decisions here.
const (
	PhaseMature int32 = 6
	PhaseDead   int32 = 7
)

// Friend-farm operation ids accepted by CheckCanOperate and
// DoFriendOperation.
const (
	OpHarvest     int64 = 10001
	OpWeed        int64 = 10005
	OpInsecticide int64 = 10006
	OpWater       int64 = 10007
	OpSteal       int64 = 10008
)

// PlantPhaseInfo is one growth-phase boundary: the phase code and the
// unix time the plant enters it. Servers report either seconds or
// milliseconds here; callers normalize.
type PlantPhaseInfo struct {
	Phase     int32
	BeginTime int64
}

func (m *PlantPhaseInfo) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.Phase)
	b = appendInt64(b, 2, m.BeginTime)
	return b
}

func (m *PlantPhaseInfo) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.Phase = val.int32()
		case 2:
			m.BeginTime = val.int64()
		}
		return nil
	})
}

// PlantInfo describes the crop on one land.
type PlantInfo struct {
	ID           int64
	Phases       []*PlantPhaseInfo
	DryNum       int32
	WeedOwners   []int64
	InsectOwners []int64
	Stealable    bool
}

func (m *PlantInfo) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ID)
	for _, p := range m.Phases {
		b = appendMessage(b, 2, p)
	}
	b = appendInt32(b, 3, m.DryNum)
	b = appendPackedInt64(b, 4, m.WeedOwners)
	b = appendPackedInt64(b, 5, m.InsectOwners)
	b = appendBool(b, 6, m.Stealable)
	return b
}

func (m *PlantInfo) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		switch num {
		case 1:
			m.ID = val.int64()
		case 2:
			p := &PlantPhaseInfo{}
			if err = p.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Phases = append(m.Phases, p)
		case 3:
			m.DryNum = val.int32()
		case 4:
			m.WeedOwners, err = consumeRepeatedInt64(m.WeedOwners, typ, val)
		case 5:
			m.InsectOwners, err = consumeRepeatedInt64(m.InsectOwners, typ, val)
		case 6:
			m.Stealable = val.bool()
		}
		return err
	})
}

// LandInfo is one land plot in the AllLands snapshot.
type LandInfo struct {
	ID           int64
	Unlocked     bool
	Level        int32
	CouldUnlock  bool
	CouldUpgrade bool
	Plant        *PlantInfo
}

func (m *LandInfo) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ID)
	b = appendBool(b, 2, m.Unlocked)
	b = appendInt32(b, 3, m.Level)
	b = appendBool(b, 4, m.CouldUnlock)
	b = appendBool(b, 5, m.CouldUpgrade)
	if m.Plant != nil {
		b = appendMessage(b, 6, m.Plant)
	}
	return b
}

func (m *LandInfo) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ID = val.int64()
		case 2:
			m.Unlocked = val.bool()
		case 3:
			m.Level = val.int32()
		case 4:
			m.CouldUnlock = val.bool()
		case 5:
			m.CouldUpgrade = val.bool()
		case 6:
			m.Plant = &PlantInfo{}
			return m.Plant.Unmarshal(val.raw)
		}
		return nil
	})
}

// OperationLimit is one row of the per-operation daily quota table.
type OperationLimit struct {
	ID           int64
	DayTimes     int32
	DayTimesLt   int32
	DayExpTimes  int32
	DayExTimesLt int32
}

func (m *OperationLimit) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.ID)
	b = appendInt32(b, 2, m.DayTimes)
	b = appendInt32(b, 3, m.DayTimesLt)
	b = appendInt32(b, 4, m.DayExpTimes)
	b = appendInt32(b, 5, m.DayExTimesLt)
	return b
}

func (m *OperationLimit) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.ID = val.int64()
		case 2:
			m.DayTimes = val.int32()
		case 3:
			m.DayTimesLt = val.int32()
		case 4:
			m.DayExpTimes = val.int32()
		case 5:
			m.DayExTimesLt = val.int32()
		}
		return nil
	})
}

type AllLandsRequest struct {
	HostGid int64
}

func (m *AllLandsRequest) Marshal() []byte {
	return appendInt64(nil, 1, m.HostGid)
}

func (m *AllLandsRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.HostGid = val.int64()
		}
		return nil
	})
}

type AllLandsReply struct {
	Lands           []*LandInfo
	OperationLimits []*OperationLimit
}

func (m *AllLandsReply) Marshal() []byte {
	var b []byte
	for _, l := range m.Lands {
		b = appendMessage(b, 1, l)
	}
	for _, ol := range m.OperationLimits {
		b = appendMessage(b, 2, ol)
	}
	return b
}

func (m *AllLandsReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			l := &LandInfo{}
			if err := l.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Lands = append(m.Lands, l)
		case 2:
			ol := &OperationLimit{}
			if err := ol.Unmarshal(val.raw); err != nil {
				return err
			}
			m.OperationLimits = append(m.OperationLimits, ol)
		}
		return nil
	})
}

type HarvestRequest struct {
	LandIds []int64
	HostGid int64
	IsAll   bool
}

func (m *HarvestRequest) Marshal() []byte {
	var b []byte
	b = appendPackedInt64(b, 1, m.LandIds)
	b = appendInt64(b, 2, m.HostGid)
	b = appendBool(b, 3, m.IsAll)
	return b
}

func (m *HarvestRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		switch num {
		case 1:
			m.LandIds, err = consumeRepeatedInt64(m.LandIds, typ, val)
		case 2:
			m.HostGid = val.int64()
		case 3:
			m.IsAll = val.bool()
		}
		return err
	})
}

// operationLimitsReply covers the replies that only carry a refreshed
// quota table.
type operationLimitsReply struct {
	OperationLimits []*OperationLimit
}

func (m *operationLimitsReply) Marshal() []byte {
	var b []byte
	for _, ol := range m.OperationLimits {
		b = appendMessage(b, 1, ol)
	}
	return b
}

func (m *operationLimitsReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			ol := &OperationLimit{}
			if err := ol.Unmarshal(val.raw); err != nil {
				return err
			}
			m.OperationLimits = append(m.OperationLimits, ol)
		}
		return nil
	})
}

type HarvestReply = operationLimitsReply

// landListRequest covers the land-batch requests that carry land ids
// plus the visited farm owner.
type landListRequest struct {
	LandIds []int64
	HostGid int64
}

func (m *landListRequest) Marshal() []byte {
	var b []byte
	b = appendPackedInt64(b, 1, m.LandIds)
	b = appendInt64(b, 2, m.HostGid)
	return b
}

func (m *landListRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		switch num {
		case 1:
			m.LandIds, err = consumeRepeatedInt64(m.LandIds, typ, val)
		case 2:
			m.HostGid = val.int64()
		}
		return err
	})
}

type (
	WaterLandRequest   = landListRequest
	WaterLandReply     = operationLimitsReply
	WeedOutRequest     = landListRequest
	WeedOutReply       = operationLimitsReply
	InsecticideRequest = landListRequest
	InsecticideReply   = operationLimitsReply
	PutWeedsRequest    = landListRequest
	PutWeedsReply      = operationLimitsReply
	PutInsectsRequest  = landListRequest
	PutInsectsReply    = operationLimitsReply
)

type FertilizeRequest struct {
	LandIds      []int64
	FertilizerID int64
}

func (m *FertilizeRequest) Marshal() []byte {
	var b []byte
	b = appendPackedInt64(b, 1, m.LandIds)
	b = appendInt64(b, 2, m.FertilizerID)
	return b
}

func (m *FertilizeRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		switch num {
		case 1:
			m.LandIds, err = consumeRepeatedInt64(m.LandIds, typ, val)
		case 2:
			m.FertilizerID = val.int64()
		}
		return err
	})
}

type FertilizeReply struct{}

func (m *FertilizeReply) Marshal() []byte        { return nil }
func (m *FertilizeReply) Unmarshal([]byte) error { return nil }

type RemovePlantRequest struct {
	LandIds []int64
}

func (m *RemovePlantRequest) Marshal() []byte {
	return appendPackedInt64(nil, 1, m.LandIds)
}

func (m *RemovePlantRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		if num == 1 {
			m.LandIds, err = consumeRepeatedInt64(m.LandIds, typ, val)
		}
		return err
	})
}

type UpgradeLandRequest struct {
	LandID int64
}

func (m *UpgradeLandRequest) Marshal() []byte {
	return appendInt64(nil, 1, m.LandID)
}

func (m *UpgradeLandRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		if num == 1 {
			m.LandID = val.int64()
		}
		return nil
	})
}

type UnlockLandRequest struct {
	LandID   int64
	DoShared bool
}

func (m *UnlockLandRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.LandID)
	b = appendBool(b, 2, m.DoShared)
	return b
}

func (m *UnlockLandRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.LandID = val.int64()
		case 2:
			m.DoShared = val.bool()
		}
		return nil
	})
}

// PlantItem batches one seed over several lands.
type PlantItem struct {
	SeedID  int64
	LandIds []int64
}

func (m *PlantItem) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.SeedID)
	b = appendPackedInt64(b, 2, m.LandIds)
	return b
}

func (m *PlantItem) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		var err error
		switch num {
		case 1:
			m.SeedID = val.int64()
		case 2:
			m.LandIds, err = consumeRepeatedInt64(m.LandIds, typ, val)
		}
		return err
	})
}

// PlantRequest carries per-seed batches in Items; LandAndSeed is the
// legacy flat land→seed form older gates still accept. The gate
// rejects multi-land batches, so callers send one land per request.
type PlantRequest struct {
	LandAndSeed map[int64]int64
	Items       []*PlantItem
}

func (m *PlantRequest) Marshal() []byte {
	var b []byte
	for land, seed := range m.LandAndSeed {
		var entry []byte
		entry = appendInt64(entry, 1, land)
		entry = appendInt64(entry, 2, seed)
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	for _, item := range m.Items {
		b = appendMessage(b, 2, item)
	}
	return b
}

func (m *PlantRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			var land, seed int64
			err := walk(val.raw, func(n protowire.Number, _ protowire.Type, v wireValue) error {
				switch n {
				case 1:
					land = v.int64()
				case 2:
					seed = v.int64()
				}
				return nil
			})
			if err != nil {
				return err
			}
			if m.LandAndSeed == nil {
				m.LandAndSeed = make(map[int64]int64)
			}
			m.LandAndSeed[land] = seed
		case 2:
			item := &PlantItem{}
			if err := item.Unmarshal(val.raw); err != nil {
				return err
			}
			m.Items = append(m.Items, item)
		}
		return nil
	})
}

type CheckCanOperateRequest struct {
	HostGid     int64
	OperationID int64
}

func (m *CheckCanOperateRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.HostGid)
	b = appendInt64(b, 2, m.OperationID)
	return b
}

func (m *CheckCanOperateRequest) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.HostGid = val.int64()
		case 2:
			m.OperationID = val.int64()
		}
		return nil
	})
}

type CheckCanOperateReply struct {
	CanOperate  bool
	CanStealNum int32
}

func (m *CheckCanOperateReply) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.CanOperate)
	b = appendInt32(b, 2, m.CanStealNum)
	return b
}

func (m *CheckCanOperateReply) Unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, val wireValue) error {
		switch num {
		case 1:
			m.CanOperate = val.bool()
		case 2:
			m.CanStealNum = val.int32()
		}
		return nil
	})
}

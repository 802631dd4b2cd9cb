package domain

import (
	"context"

	"qq-farm-runtime/gamepb"
)

// DefaultClientVersion is sent when the caller does not override it.
const DefaultClientVersion = "1.6.0.5_20251224"

// UserService wraps the user gate service: login, heartbeat and share
// click reporting.
type UserService struct {
	caller Caller
}

func NewUserService(caller Caller) *UserService {
	return &UserService{caller: caller}
}

// Login performs the post-connect login handshake. The device profile
// matches what the web client reports.
func (u *UserService) Login(ctx context.Context, clientVersion string) (*gamepb.LoginReply, error) {
	if clientVersion == "" {
		clientVersion = DefaultClientVersion
	}
	req := &gamepb.LoginRequest{
		DeviceInfo: &gamepb.DeviceInfo{
			ClientVersion: clientVersion,
			SysSoftware:   "iOS 26.2.1",
			Network:       "wifi",
			Memory:        7672,
			DeviceID:      "iPhone X<iPhone18,3>",
		},
		SceneID: "1256",
		ReportData: &gamepb.ReportData{
			MinigameChannel: "other",
			MinigamePlatid:  2,
		},
	}
	body, err := u.caller.Call(ctx, UserServiceName, "Login", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.LoginReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// Heartbeat keeps the gate session alive.
func (u *UserService) Heartbeat(ctx context.Context, gid int64, clientVersion string) (*gamepb.HeartbeatReply, error) {
	if clientVersion == "" {
		clientVersion = DefaultClientVersion
	}
	req := &gamepb.HeartbeatRequest{Gid: gid, ClientVersion: clientVersion}
	body, err := u.caller.Call(ctx, UserServiceName, "Heartbeat", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.HeartbeatReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// ReportArkClick reports a share-link click on behalf of the sharer.
func (u *UserService) ReportArkClick(ctx context.Context, sharerID int64, sharerOpenID string, shareCfgID int64, sceneID string) (*gamepb.ReportArkClickReply, error) {
	req := &gamepb.ReportArkClickRequest{
		SharerID:     sharerID,
		SharerOpenID: sharerOpenID,
		ShareCfgID:   shareCfgID,
		SceneID:      sceneID,
	}
	body, err := u.caller.Call(ctx, UserServiceName, "ReportArkClick", req.Marshal())
	if err != nil {
		return nil, err
	}
	reply := &gamepb.ReportArkClickReply{}
	if err := reply.Unmarshal(body); err != nil {
		return nil, err
	}
	return reply, nil
}

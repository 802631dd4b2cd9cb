package domain

import (
	"context"
	"time"
)

// Gate service names, as routed by the gateway.
const (
	PlantServiceName  = "gamepb.plantpb.PlantService"
	ShopServiceName   = "gamepb.shoppb.ShopService"
	ItemServiceName   = "gamepb.itempb.ItemService"
	UserServiceName   = "gamepb.userpb.UserService"
	FriendServiceName = "gamepb.friendpb.FriendService"
	VisitServiceName  = "gamepb.visitpb.VisitService"
	TaskServiceName   = "gamepb.taskpb.TaskService"
)

// Caller issues one gate RPC. Implemented by *gate.Session; tests use
// scripted fakes.
type Caller interface {
	Call(ctx context.Context, service, method string, body []byte) ([]byte, error)
}

// batchDelay paces multi-land requests so the gate does not throttle.
const batchDelay = 50 * time.Millisecond

// opDelay paces sequential claim/upgrade style calls.
const opDelay = 200 * time.Millisecond

// sleepCtx waits for d, returning false if ctx finished first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

package domain

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/gameconf"
)

// fakeCaller scripts gate replies per service.Method and records every
// request body.
type fakeCaller struct {
	mu       sync.Mutex
	calls    []string
	bodies   map[string][][]byte
	handlers map[string]func(body []byte) ([]byte, error)
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		bodies:   make(map[string][][]byte),
		handlers: make(map[string]func(body []byte) ([]byte, error)),
	}
}

func (f *fakeCaller) on(service, method string, fn func(body []byte) ([]byte, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[service+"."+method] = fn
}

func (f *fakeCaller) reply(service, method string, body []byte) {
	f.on(service, method, func([]byte) ([]byte, error) { return body, nil })
}

func (f *fakeCaller) fail(service, method string, err error) {
	f.on(service, method, func([]byte) ([]byte, error) { return nil, err })
}

func (f *fakeCaller) Call(_ context.Context, service, method string, body []byte) ([]byte, error) {
	key := service + "." + method
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.bodies[key] = append(f.bodies[key], body)
	fn := f.handlers[key]
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.Newf("no handler for %s", key)
	}
	return fn(body)
}

func (f *fakeCaller) callCount(service, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies[service+"."+method])
}

func (f *fakeCaller) lastBody(service, method string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := f.bodies[service+"."+method]
	if len(bodies) == 0 {
		return nil
	}
	return bodies[len(bodies)-1]
}

// newTestConfig loads a two-crop static table: 白萝卜 (seed 20001,
// level 1, single season) and 胡萝卜 (seed 20002, level 3, two
// seasons), plus an out-of-range event crop the analytics must skip.
func newTestConfig(t *testing.T) *gameconf.Store {
	t.Helper()
	root := t.TempDir()
	configDir := filepath.Join(root, "qqfarm文档", "gameConfig")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	files := map[string]string{
		"RoleLevel.json": `[
			{"level": 1, "exp": 0},
			{"level": 2, "exp": 100}
		]`,
		"Plant.json": `[
			{"id": 10230001, "name": "白萝卜", "seed_id": 20001, "exp": 3,
			 "grow_phases": "1:60;2:120;3:180", "seasons": 1, "land_level_need": 1,
			 "fruit": {"id": 40001, "count": 12}},
			{"id": 10230002, "name": "胡萝卜", "seed_id": 20002, "exp": 10,
			 "grow_phases": "1:300;2:300", "seasons": 2, "land_level_need": 3,
			 "fruit": {"id": 40002, "count": 6}},
			{"id": 50001, "name": "活动作物", "seed_id": 31000, "exp": 99,
			 "grow_phases": "1:60", "seasons": 1, "land_level_need": 1}
		]`,
		"ItemInfo.json": `[
			{"id": 20001, "name": "白萝卜种子", "price": 10, "type": 5, "level": 1},
			{"id": 20002, "name": "胡萝卜种子", "price": 50, "type": 5, "level": 3},
			{"id": 40001, "name": "白萝卜", "price": 5, "type": 1},
			{"id": 40002, "name": "胡萝卜", "price": 15, "type": 1},
			{"id": 1011, "name": "普通肥料", "price": 0, "type": 2,
			 "interaction_type": "fertilizerbucket"}
		]`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(configDir, name), []byte(content), 0o644))
	}
	return gameconf.Load(root)
}

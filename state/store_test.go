package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qq-farm-runtime/errors"
)

func openStore(t *testing.T, users, groups []string) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), users, groups)
	require.NoError(t, err)
	return s
}

func TestBindAccount(t *testing.T) {
	s := openStore(t, nil, nil)

	require.NoError(t, s.BindAccount("u1", "a1", "账号一"))
	assert.Equal(t, "a1", s.BoundAccount("u1"))
	assert.Equal(t, "u1", s.AccountOwner("a1"))

	info := s.BoundAccountInfo("u1")
	require.NotNil(t, info)
	assert.Equal(t, "账号一", info.AccountName)
	assert.NotZero(t, info.UpdatedAt)

	assert.Nil(t, s.BoundAccountInfo("nobody"))
	assert.Equal(t, "", s.BoundAccount(""))
}

func TestBindAccountOneOwnerPolicy(t *testing.T) {
	s := openStore(t, nil, nil)
	require.NoError(t, s.BindAccount("u1", "a1", ""))

	err := s.BindAccount("u2", "a1", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyBound))

	// Same user rebinding the same account is a no-op success.
	require.NoError(t, s.BindAccount("u1", "a1", "renamed"))
}

func TestRebindMovesUser(t *testing.T) {
	s := openStore(t, nil, nil)
	require.NoError(t, s.BindAccount("u1", "a1", ""))
	require.NoError(t, s.BindAccount("u1", "a2", ""))

	assert.Equal(t, "a2", s.BoundAccount("u1"))
	assert.Equal(t, "", s.AccountOwner("a1"))
	assert.Equal(t, "u1", s.AccountOwner("a2"))

	// The freed account can now be claimed by someone else.
	require.NoError(t, s.BindAccount("u2", "a1", ""))
}

func TestUnbindAccount(t *testing.T) {
	s := openStore(t, nil, nil)
	require.NoError(t, s.BindAccount("u1", "a1", ""))

	assert.Equal(t, "a1", s.UnbindAccount("u1"))
	assert.Equal(t, "", s.BoundAccount("u1"))
	assert.Equal(t, "", s.AccountOwner("a1"))
	assert.Equal(t, "", s.UnbindAccount("u1"))
}

func TestBindingsPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.BindAccount("u1", "a1", "名字"))

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a1", reopened.BoundAccount("u1"))
	assert.Equal(t, "名字", reopened.BoundAccountInfo("u1").AccountName)
}

func TestNormalizeBindingsKeepsNewestOwner(t *testing.T) {
	dir := t.TempDir()
	corrupt := map[string]any{
		"owners": map[string]any{
			"u1": map[string]any{"account_id": "a1", "updated_at": 100},
			"u2": map[string]any{"account_id": "a1", "updated_at": 200},
			"":   map[string]any{"account_id": "a9", "updated_at": 300},
		},
		"accountOwners": map[string]string{"a1": "u1", "ghost": "u3"},
	}
	data, err := json.Marshal(corrupt)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bindings_v2.json"), data, 0o644))

	s, err := Open(dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "u2", s.AccountOwner("a1"))
	assert.Equal(t, "a1", s.BoundAccount("u2"))
	assert.Equal(t, "", s.AccountOwner("ghost"))
}

func TestWhitelist(t *testing.T) {
	s := openStore(t, []string{"static1", " static1 ", ""}, []string{"g1"})

	assert.True(t, s.IsUserAllowed("static1"))
	assert.False(t, s.IsUserAllowed("u1"))
	assert.False(t, s.IsUserAllowed(""))

	assert.True(t, s.AddWhitelistUser("u1"))
	assert.False(t, s.AddWhitelistUser("u1"))
	assert.True(t, s.IsUserAllowed("u1"))

	// Static entries merge ahead of local ones.
	assert.Equal(t, []string{"static1", "u1"}, s.WhitelistUsers())
	assert.Equal(t, []string{"u1"}, s.LocalWhitelistUsers())

	assert.True(t, s.RemoveWhitelistUser("u1"))
	assert.False(t, s.RemoveWhitelistUser("u1"))
	assert.False(t, s.IsUserAllowed("u1"))

	assert.True(t, s.IsGroupAllowed("g1"))
	assert.True(t, s.AddWhitelistGroup("g2"))
	assert.True(t, s.IsGroupAllowed("g2"))
	assert.True(t, s.RemoveWhitelistGroup("g2"))
	assert.False(t, s.IsGroupAllowed("g2"))
}

func TestRefreshStaticWhitelist(t *testing.T) {
	s := openStore(t, []string{"old"}, nil)
	assert.True(t, s.IsUserAllowed("old"))

	s.RefreshStaticWhitelist([]string{"new"}, nil)
	assert.False(t, s.IsUserAllowed("old"))
	assert.True(t, s.IsUserAllowed("new"))
}

func TestRenderTheme(t *testing.T) {
	s := openStore(t, nil, nil)

	// The stored default is light; the fallback only covers bad values.
	assert.Equal(t, "light", s.RenderTheme("dark"))

	s.theme.RenderTheme = "neon"
	assert.Equal(t, "dark", s.RenderTheme("dark"))
	assert.Equal(t, "light", s.RenderTheme("neon"))
}

func TestSetRenderTheme(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil, nil)
	require.NoError(t, err)

	got, err := s.SetRenderTheme(" DARK ")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
	assert.Equal(t, "dark", s.RenderTheme("light"))

	_, err = s.SetRenderTheme("solarized")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "dark", reopened.RenderTheme("light"))
}

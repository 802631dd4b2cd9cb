// Package state persists the chat-facing runtime state: user/account
// bindings, the access whitelist and the render theme. Files live as
// pretty-printed JSON under a data directory and are rewritten
// atomically on every mutation.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/logger"
)

// Binding records which account a chat user controls.
type Binding struct {
	UserID      string `json:"user_id"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	UpdatedAt   int64  `json:"updated_at"`
}

type bindingRecord struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	UpdatedAt   int64  `json:"updated_at"`
}

type bindingsFile struct {
	Owners        map[string]bindingRecord `json:"owners"`
	AccountOwners map[string]string        `json:"accountOwners"`
}

type whitelistFile struct {
	Users  []string `json:"users"`
	Groups []string `json:"groups"`
}

type themeFile struct {
	RenderTheme string `json:"render_theme"`
}

var allowedThemes = map[string]bool{"dark": true, "light": true}

// Store is safe for concurrent use.
type Store struct {
	dataDir string

	bindingsPath  string
	whitelistPath string
	themePath     string

	mu           sync.Mutex
	bindings     bindingsFile
	whitelist    whitelistFile
	theme        themeFile
	staticUsers  []string
	staticGroups []string
}

// Open loads (or seeds) the state files under dataDir. Static
// whitelists come from configuration and merge ahead of the local
// lists.
func Open(dataDir string, staticUsers, staticGroups []string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}
	s := &Store{
		dataDir:       dataDir,
		bindingsPath:  filepath.Join(dataDir, "bindings_v2.json"),
		whitelistPath: filepath.Join(dataDir, "whitelist.json"),
		themePath:     filepath.Join(dataDir, "state_v2.json"),
		staticUsers:   normalizeIDList(staticUsers),
		staticGroups:  normalizeIDList(staticGroups),
	}

	s.bindings = bindingsFile{Owners: map[string]bindingRecord{}, AccountOwners: map[string]string{}}
	loadJSON(s.bindingsPath, &s.bindings)
	s.bindings = normalizeBindings(s.bindings)
	s.saveLocked(s.bindingsPath, &s.bindings)

	s.whitelist = whitelistFile{Users: []string{}, Groups: []string{}}
	loadJSON(s.whitelistPath, &s.whitelist)
	s.whitelist.Users = normalizeIDList(s.whitelist.Users)
	s.whitelist.Groups = normalizeIDList(s.whitelist.Groups)
	s.saveLocked(s.whitelistPath, &s.whitelist)

	s.theme = themeFile{RenderTheme: "light"}
	loadJSON(s.themePath, &s.theme)

	return s, nil
}

// RefreshStaticWhitelist replaces the configuration-sourced lists.
func (s *Store) RefreshStaticWhitelist(users, groups []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticUsers = normalizeIDList(users)
	s.staticGroups = normalizeIDList(groups)
}

// RenderTheme returns the active theme, falling back to a sane default.
func (s *Store) RenderTheme(defaultTheme string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	fallback := strings.ToLower(strings.TrimSpace(defaultTheme))
	if !allowedThemes[fallback] {
		fallback = "light"
	}
	current := strings.ToLower(strings.TrimSpace(s.theme.RenderTheme))
	if allowedThemes[current] {
		return current
	}
	return fallback
}

// SetRenderTheme persists the theme. Only dark and light are accepted.
func (s *Store) SetRenderTheme(theme string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(theme))
	if !allowedThemes[normalized] {
		return "", errors.Wrap(errors.ErrInvalidArgument, "theme 仅支持 dark|light")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme.RenderTheme = normalized
	s.saveLocked(s.themePath, &s.theme)
	return normalized, nil
}

// BoundAccount returns the account bound to a user, "" when unbound.
func (s *Store) BoundAccount(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := normalizeID(userID)
	if uid == "" {
		return ""
	}
	return s.bindings.Owners[uid].AccountID
}

// BoundAccountInfo returns the full binding row, nil when unbound.
func (s *Store) BoundAccountInfo(userID string) *Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := normalizeID(userID)
	if uid == "" {
		return nil
	}
	record, ok := s.bindings.Owners[uid]
	if !ok || record.AccountID == "" {
		return nil
	}
	return &Binding{
		UserID:      uid,
		AccountID:   record.AccountID,
		AccountName: record.AccountName,
		UpdatedAt:   record.UpdatedAt,
	}
}

// BindAccount binds a user to an account one-to-one. Rebinding moves
// the user; binding an account already owned by another user fails
// with ErrAlreadyBound.
func (s *Store) BindAccount(userID, accountID, accountName string) error {
	uid := normalizeID(userID)
	aid := normalizeID(accountID)
	if uid == "" || aid == "" {
		return errors.Wrap(errors.ErrInvalidArgument, "user_id 和 account_id 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner := s.bindings.AccountOwners[aid]; owner != "" && owner != uid {
		return errors.Wrapf(errors.ErrAlreadyBound, "账号 %s 已被用户 %s 绑定，当前策略禁止共享账号", aid, owner)
	}

	if old, ok := s.bindings.Owners[uid]; ok && old.AccountID != "" && old.AccountID != aid {
		if s.bindings.AccountOwners[old.AccountID] == uid {
			delete(s.bindings.AccountOwners, old.AccountID)
		}
	}

	s.bindings.Owners[uid] = bindingRecord{
		AccountID:   aid,
		AccountName: accountName,
		UpdatedAt:   time.Now().Unix(),
	}
	s.bindings.AccountOwners[aid] = uid
	s.saveLocked(s.bindingsPath, &s.bindings)
	return nil
}

// UnbindAccount removes a user's binding and returns the freed account
// id, "" when nothing was bound.
func (s *Store) UnbindAccount(userID string) string {
	uid := normalizeID(userID)
	if uid == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.bindings.Owners[uid]
	if !ok {
		return ""
	}
	delete(s.bindings.Owners, uid)
	if record.AccountID != "" && s.bindings.AccountOwners[record.AccountID] == uid {
		delete(s.bindings.AccountOwners, record.AccountID)
	}
	s.saveLocked(s.bindingsPath, &s.bindings)
	return record.AccountID
}

// AccountOwner returns the user owning an account, "" when unowned.
func (s *Store) AccountOwner(accountID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings.AccountOwners[normalizeID(accountID)]
}

// SetWhitelist replaces the local whitelist wholesale.
func (s *Store) SetWhitelist(users, groups []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist = whitelistFile{
		Users:  normalizeIDList(users),
		Groups: normalizeIDList(groups),
	}
	s.saveLocked(s.whitelistPath, &s.whitelist)
}

// WhitelistUsers merges static and local users, preserving order.
func (s *Store) WhitelistUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mergeIDs(s.staticUsers, s.whitelist.Users)
}

// WhitelistGroups merges static and local groups, preserving order.
func (s *Store) WhitelistGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mergeIDs(s.staticGroups, s.whitelist.Groups)
}

// LocalWhitelistUsers returns only the locally stored users.
func (s *Store) LocalWhitelistUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.whitelist.Users...)
}

// LocalWhitelistGroups returns only the locally stored groups.
func (s *Store) LocalWhitelistGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.whitelist.Groups...)
}

// AddWhitelistUser appends a user; false when empty or present.
func (s *Store) AddWhitelistUser(userID string) bool {
	uid := normalizeID(userID)
	if uid == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.whitelist.Users {
		if existing == uid {
			return false
		}
	}
	s.whitelist.Users = append(s.whitelist.Users, uid)
	s.saveLocked(s.whitelistPath, &s.whitelist)
	return true
}

// RemoveWhitelistUser drops a user; false when absent.
func (s *Store) RemoveWhitelistUser(userID string) bool {
	uid := normalizeID(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := make([]string, 0, len(s.whitelist.Users))
	removed := false
	for _, existing := range s.whitelist.Users {
		if existing == uid {
			removed = true
			continue
		}
		filtered = append(filtered, existing)
	}
	if !removed {
		return false
	}
	s.whitelist.Users = filtered
	s.saveLocked(s.whitelistPath, &s.whitelist)
	return true
}

// AddWhitelistGroup appends a group; false when empty or present.
func (s *Store) AddWhitelistGroup(groupID string) bool {
	gid := normalizeID(groupID)
	if gid == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.whitelist.Groups {
		if existing == gid {
			return false
		}
	}
	s.whitelist.Groups = append(s.whitelist.Groups, gid)
	s.saveLocked(s.whitelistPath, &s.whitelist)
	return true
}

// RemoveWhitelistGroup drops a group; false when absent.
func (s *Store) RemoveWhitelistGroup(groupID string) bool {
	gid := normalizeID(groupID)
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := make([]string, 0, len(s.whitelist.Groups))
	removed := false
	for _, existing := range s.whitelist.Groups {
		if existing == gid {
			removed = true
			continue
		}
		filtered = append(filtered, existing)
	}
	if !removed {
		return false
	}
	s.whitelist.Groups = filtered
	s.saveLocked(s.whitelistPath, &s.whitelist)
	return true
}

// IsUserAllowed reports whitelist membership, static lists included.
func (s *Store) IsUserAllowed(userID string) bool {
	uid := normalizeID(userID)
	if uid == "" {
		return false
	}
	for _, allowed := range s.WhitelistUsers() {
		if allowed == uid {
			return true
		}
	}
	return false
}

// IsGroupAllowed reports whitelist membership, static lists included.
func (s *Store) IsGroupAllowed(groupID string) bool {
	gid := normalizeID(groupID)
	if gid == "" {
		return false
	}
	for _, allowed := range s.WhitelistGroups() {
		if allowed == gid {
			return true
		}
	}
	return false
}

// saveLocked writes a state file via temp-and-rename. Callers hold mu.
func (s *Store) saveLocked(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Errorw("marshal state file failed", "path", path, "error", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Errorw("write state file failed", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Errorw("rename state file failed", "path", path, "error", err)
	}
}

func loadJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warnw("parse state file failed, using defaults", "path", path, "error", err)
	}
}

// normalizeBindings repairs legacy or hand-edited binding files so the
// maps stay bijective: each account keeps the owner with the newest
// updated_at, and every surviving owner row matches its reverse entry.
func normalizeBindings(raw bindingsFile) bindingsFile {
	owners := make(map[string]bindingRecord)
	type candidate struct {
		uid       string
		updatedAt int64
	}
	candidates := make(map[string]candidate)

	for userID, info := range raw.Owners {
		uid := normalizeID(userID)
		aid := normalizeID(info.AccountID)
		if uid == "" || aid == "" {
			continue
		}
		owners[uid] = bindingRecord{
			AccountID:   aid,
			AccountName: info.AccountName,
			UpdatedAt:   info.UpdatedAt,
		}
		current, ok := candidates[aid]
		if !ok || info.UpdatedAt >= current.updatedAt {
			candidates[aid] = candidate{uid: uid, updatedAt: info.UpdatedAt}
		}
	}

	for accountID, userID := range raw.AccountOwners {
		aid := normalizeID(accountID)
		uid := normalizeID(userID)
		if aid == "" || uid == "" {
			continue
		}
		info, ok := owners[uid]
		if !ok || info.AccountID != aid {
			continue
		}
		current, found := candidates[aid]
		if !found || info.UpdatedAt >= current.updatedAt {
			candidates[aid] = candidate{uid: uid, updatedAt: info.UpdatedAt}
		}
	}

	normalized := bindingsFile{
		Owners:        make(map[string]bindingRecord),
		AccountOwners: make(map[string]string),
	}
	for aid, winner := range candidates {
		info, ok := owners[winner.uid]
		if !ok {
			continue
		}
		normalized.Owners[winner.uid] = info
		normalized.AccountOwners[aid] = winner.uid
	}
	return normalized
}

func normalizeID(value string) string {
	return strings.TrimSpace(value)
}

func normalizeIDList(values []string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]bool)
	for _, value := range values {
		id := normalizeID(value)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}

func mergeIDs(lists ...[]string) []string {
	var merged []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, value := range list {
			if value == "" || seen[value] {
				continue
			}
			seen[value] = true
			merged = append(merged, value)
		}
	}
	return merged
}

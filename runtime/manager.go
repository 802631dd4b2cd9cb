package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"qq-farm-runtime/domain"
	"qq-farm-runtime/errors"
	"qq-farm-runtime/gameconf"
	"qq-farm-runtime/gate"
	"qq-farm-runtime/logger"
	"qq-farm-runtime/qrlogin"
)

// RuntimeView is the persisted start/stop state shown per account.
type RuntimeView struct {
	RuntimeState       string `json:"runtimeState"`
	LastStartError     string `json:"lastStartError"`
	LastStartAt        int64  `json:"lastStartAt"`
	LastStartSuccessAt int64  `json:"lastStartSuccessAt"`
	StartRetryCount    int    `json:"startRetryCount"`
}

// LogEntry is one runtime log line kept in the ring buffer.
type LogEntry struct {
	Time      string         `json:"time"`
	Tag       string         `json:"tag"`
	Msg       string         `json:"msg"`
	IsWarn    bool           `json:"isWarn"`
	AccountID string         `json:"accountId"`
	Meta      map[string]any `json:"meta"`
	Ts        int64          `json:"ts"`

	// search is indexed once at append time so keyword filtering does
	// not re-serialize Meta on every query.
	search string
}

func (e *LogEntry) indexSearchText() {
	meta, _ := json.Marshal(e.Meta)
	e.search = strings.ToLower(e.Msg + " " + e.Tag + " " + string(meta))
}

func (e *LogEntry) searchText() string {
	if e.search == "" {
		e.indexSearchText()
	}
	return e.search
}

// AccountLogEntry records account lifecycle events (add/update/delete,
// kickouts, failed starts).
type AccountLogEntry struct {
	Time        string `json:"time"`
	Action      string `json:"action"`
	Msg         string `json:"msg"`
	AccountID   string `json:"accountId"`
	AccountName string `json:"accountName"`
	Reason      string `json:"reason,omitempty"`
}

// LogFilter narrows Logs output.
type LogFilter struct {
	AccountID string
	Limit     int
	Keyword   string
	Module    string
	Event     string
	IsWarn    *bool
}

// ServiceStatus summarizes the whole manager.
type ServiceStatus struct {
	Running        bool            `json:"running"`
	RuntimeCount   int             `json:"runtimeCount"`
	FailedCount    int             `json:"failedCount"`
	FailedAccounts []FailedAccount `json:"failedAccounts"`
	RetryingCount  int             `json:"retryingCount"`
}

type FailedAccount struct {
	AccountID  string `json:"accountId"`
	Error      string `json:"error"`
	RetryCount int    `json:"retryCount"`
}

// AccountView is one account row with its runtime state attached.
type AccountView struct {
	Account
	Running bool `json:"running"`
	RuntimeView
}

// UpsertResult reports an account save plus its auto-start outcome.
type UpsertResult struct {
	Action     string       `json:"action"`
	Account    *AccountView `json:"account"`
	AutoStart  bool         `json:"autoStart"`
	StartError string       `json:"startError"`
}

// SettingsView is the per-account settings snapshot returned to
// callers.
type SettingsView struct {
	Intervals        Intervals  `json:"intervals"`
	Strategy         string     `json:"strategy"`
	PreferredSeed    int64      `json:"preferredSeed"`
	FriendQuietHours QuietHours `json:"friendQuietHours"`
	Automation       Automation `json:"automation"`
	UI               UITheme    `json:"ui"`
}

type UITheme struct {
	Theme string `json:"theme"`
}

type accountsFile struct {
	Accounts []Account `json:"accounts"`
	NextID   int64     `json:"nextId"`
}

type settingsFile struct {
	AccountConfigs       map[string]AccountConfig `json:"accountConfigs"`
	DefaultAccountConfig AccountConfig            `json:"defaultAccountConfig"`
	UI                   UITheme                  `json:"ui"`
	Revision             int64                    `json:"__revision"`
}

type runtimeFile struct {
	Status map[string]RuntimeView `json:"status"`
}

type logsFile struct {
	Global  []*LogEntry        `json:"global"`
	Account []*AccountLogEntry `json:"account"`
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	DocsRoot                string
	DataDir                 string
	SessionConfig           gate.Config
	HeartbeatInterval       time.Duration
	StartRetryMaxAttempts   int
	StartRetryBaseDelay     time.Duration
	StartRetryMaxDelay      time.Duration
	AutoStartConcurrency    int
	PersistRuntimeLogs      bool
	RuntimeLogMaxEntries    int
	RuntimeLogFlushInterval time.Duration
	RuntimeLogFlushBatch    int
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 25 * time.Second
	}
	if o.StartRetryMaxAttempts < 1 {
		o.StartRetryMaxAttempts = 3
	}
	if o.StartRetryBaseDelay < 100*time.Millisecond {
		o.StartRetryBaseDelay = time.Second
	}
	if o.StartRetryMaxDelay < o.StartRetryBaseDelay {
		o.StartRetryMaxDelay = 8 * time.Second
	}
	if o.AutoStartConcurrency < 1 {
		o.AutoStartConcurrency = 5
	}
	if o.RuntimeLogMaxEntries < 1 {
		o.RuntimeLogMaxEntries = 3000
	}
	if o.RuntimeLogFlushInterval < 200*time.Millisecond {
		o.RuntimeLogFlushInterval = 2 * time.Second
	}
	if o.RuntimeLogFlushBatch < 1 {
		o.RuntimeLogFlushBatch = 80
	}
	return o
}

// Manager owns every account runtime, the persisted account/settings
// files and the runtime log buffer.
type Manager struct {
	opts   ManagerOptions
	config *gameconf.Store
	qr     *qrlogin.Client

	accountsPath string
	settingsPath string
	runtimePath  string
	logsPath     string

	mu             sync.Mutex
	serviceRunning bool
	accounts       accountsFile
	settings       settingsFile
	runtimeData    runtimeFile
	runtimes       map[string]*AccountRuntime
	startLocks     map[string]*sync.Mutex

	logMu         sync.Mutex
	globalLogs    []*LogEntry
	accountLogs   []*AccountLogEntry
	logsDirty     bool
	logsPending   int
	logsLastFlush time.Time

	// startRuntime dials and starts one runtime; overridable in tests.
	startRuntime func(ctx context.Context, rt *AccountRuntime) error
}

// NewManager loads persisted state and prepares the runtimes map. It
// does not start any account; call Start for that.
func NewManager(opts ManagerOptions) (*Manager, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	m := &Manager{
		opts:          opts,
		config:        gameconf.Load(opts.DocsRoot),
		qr:            qrlogin.NewClient(),
		accountsPath:  filepath.Join(opts.DataDir, "accounts_v2.json"),
		settingsPath:  filepath.Join(opts.DataDir, "settings_v2.json"),
		runtimePath:   filepath.Join(opts.DataDir, "runtime_v2.json"),
		logsPath:      filepath.Join(opts.DataDir, "runtime_logs_v2.json"),
		runtimes:      make(map[string]*AccountRuntime),
		startLocks:    make(map[string]*sync.Mutex),
		logsLastFlush: time.Now(),
	}
	m.startRuntime = func(ctx context.Context, rt *AccountRuntime) error {
		return rt.Start(ctx)
	}

	m.accounts = accountsFile{Accounts: []Account{}, NextID: 1}
	loadJSONFile(m.accountsPath, &m.accounts)
	m.accounts = normalizeAccounts(m.accounts)

	m.settings = settingsFile{
		AccountConfigs:       map[string]AccountConfig{},
		DefaultAccountConfig: DefaultAccountConfig(),
		UI:                   UITheme{Theme: "dark"},
		Revision:             time.Now().Unix(),
	}
	loadJSONFile(m.settingsPath, &m.settings)
	if m.settings.AccountConfigs == nil {
		m.settings.AccountConfigs = map[string]AccountConfig{}
	}

	m.runtimeData = runtimeFile{Status: map[string]RuntimeView{}}
	loadJSONFile(m.runtimePath, &m.runtimeData)
	if m.runtimeData.Status == nil {
		m.runtimeData.Status = map[string]RuntimeView{}
	}

	if opts.PersistRuntimeLogs {
		m.loadPersistedLogs()
	}
	return m, nil
}

// Start auto-starts every stored account, at most AutoStartConcurrency
// at a time. Individual failures are logged and do not abort the rest.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.serviceRunning {
		m.mu.Unlock()
		return nil
	}
	m.serviceRunning = true
	ids := make([]string, 0, len(m.accounts.Accounts))
	for _, account := range m.accounts.Accounts {
		if account.ID != "" {
			ids = append(ids, account.ID)
		}
	}
	m.mu.Unlock()

	sem := semaphore.NewWeighted(int64(m.opts.AutoStartConcurrency))
	group, groupCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		accountID := id
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			if err := m.StartAccount(groupCtx, accountID); err != nil {
				m.systemLog(fmt.Sprintf("账号启动失败 %s: %v", accountID, err), true, "start_account", accountID)
			}
			return nil
		})
	}
	return group.Wait()
}

// Stop shuts every runtime down and flushes the log buffer.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.serviceRunning = false
	ids := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.StopAccount(id)
	}
	m.persistLogs(true)
}

// ServiceStatus reports the manager-level view.
func (m *Manager) ServiceStatus() *ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := &ServiceStatus{
		Running:        m.serviceRunning,
		RuntimeCount:   len(m.runtimes),
		FailedAccounts: []FailedAccount{},
	}
	for accountID, row := range m.runtimeData.Status {
		state := row.RuntimeState
		if state == "" {
			state = "stopped"
		}
		if state == "retrying" {
			status.RetryingCount++
		}
		if state == "failed" {
			status.FailedCount++
			if len(status.FailedAccounts) < 20 {
				status.FailedAccounts = append(status.FailedAccounts, FailedAccount{
					AccountID:  accountID,
					Error:      row.LastStartError,
					RetryCount: row.StartRetryCount,
				})
			}
		}
	}
	return status
}

// Accounts lists every stored account with runtime state attached.
func (m *Manager) Accounts() []*AccountView {
	m.mu.Lock()
	defer m.mu.Unlock()
	views := make([]*AccountView, 0, len(m.accounts.Accounts))
	for _, account := range m.accounts.Accounts {
		_, running := m.runtimes[account.ID]
		views = append(views, &AccountView{
			Account:     account,
			Running:     running,
			RuntimeView: m.runtimeViewLocked(account.ID, running),
		})
	}
	return views
}

// AccountByID returns one account view, nil when unknown.
func (m *Manager) AccountByID(accountID string) *AccountView {
	for _, view := range m.Accounts() {
		if view.ID == strings.TrimSpace(accountID) {
			return view
		}
	}
	return nil
}

// UpsertAccount saves an account (update when ID set, insert
// otherwise) and restarts it. A start failure keeps the save.
func (m *Manager) UpsertAccount(ctx context.Context, payload Account) (*UpsertResult, error) {
	m.mu.Lock()
	accountID := strings.TrimSpace(payload.ID)
	nowMs := time.Now().UnixMilli()
	var target Account
	action := "add"
	if accountID != "" {
		idx := -1
		for i, account := range m.accounts.Accounts {
			if account.ID == accountID {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.mu.Unlock()
			return nil, errors.Wrapf(errors.ErrNotFound, "账号不存在: %s", accountID)
		}
		action = "update"
		target = mergeAccount(m.accounts.Accounts[idx], payload)
		target.UpdatedAt = nowMs
		m.accounts.Accounts[idx] = target
	} else {
		newID := fmt.Sprintf("%d", m.accounts.NextID)
		m.accounts.NextID++
		target = payload
		target.ID = newID
		if target.Name == "" {
			target.Name = "账号" + newID
		}
		if target.Platform == "" {
			target.Platform = "qq"
		}
		if target.QQ == "" {
			target.QQ = target.Uin
		}
		target.CreatedAt = nowMs
		target.UpdatedAt = nowMs
		m.accounts.Accounts = append(m.accounts.Accounts, target)
	}
	saveJSONAtomic(m.accountsPath, &m.accounts)
	m.mu.Unlock()

	verb := "添加"
	if action == "update" {
		verb = "更新"
	}
	m.addAccountLog(action, fmt.Sprintf("%s账号: %s", verb, target.Name), target.ID, target.Name, "")

	if action == "update" {
		m.StopAccount(target.ID)
	}
	startError := ""
	if err := m.StartAccount(ctx, target.ID); err != nil {
		startError = err.Error()
		m.systemLog(fmt.Sprintf("账号已保存，但自动启动失败: %s", startError), true, "account_start_failed", target.ID)
		m.addAccountLog("start_failed", fmt.Sprintf("账号保存成功，但自动启动失败: %s", startError), target.ID, target.Name, "")
	}

	view := m.AccountByID(target.ID)
	if view == nil {
		view = &AccountView{Account: target}
	}
	return &UpsertResult{
		Action:     action,
		Account:    view,
		AutoStart:  startError == "",
		StartError: startError,
	}, nil
}

// DeleteAccount stops and removes an account, its settings and its
// runtime status row.
func (m *Manager) DeleteAccount(accountID string) ([]*AccountView, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "account_id 不能为空")
	}
	m.StopAccount(accountID)

	m.mu.Lock()
	targetName := ""
	kept := make([]Account, 0, len(m.accounts.Accounts))
	found := false
	for _, account := range m.accounts.Accounts {
		if account.ID == accountID {
			targetName = account.Name
			found = true
			continue
		}
		kept = append(kept, account)
	}
	if !found {
		m.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrNotFound, "账号不存在: %s", accountID)
	}
	m.accounts.Accounts = kept
	if len(kept) == 0 {
		m.accounts.NextID = 1
	}
	delete(m.settings.AccountConfigs, accountID)
	delete(m.runtimeData.Status, accountID)
	saveJSONAtomic(m.accountsPath, &m.accounts)
	saveJSONAtomic(m.settingsPath, &m.settings)
	saveJSONAtomic(m.runtimePath, &m.runtimeData)
	m.mu.Unlock()

	label := targetName
	if label == "" {
		label = accountID
	}
	m.addAccountLog("delete", "删除账号: "+label, accountID, targetName, "")
	return m.Accounts(), nil
}

// StartAccount starts one runtime with retry. Transient failures back
// off exponentially from the base delay up to the max; permanent ones
// (bad credentials, rejected handshake) fail immediately.
func (m *Manager) StartAccount(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return errors.Wrap(errors.ErrInvalidArgument, "account_id 不能为空")
	}
	lock := m.startLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if _, exists := m.runtimes[accountID]; exists {
		m.setRuntimeStatusLocked(accountID, func(v *RuntimeView) { v.RuntimeState = "running" })
		m.mu.Unlock()
		return nil
	}
	account, found := m.findAccountLocked(accountID)
	m.mu.Unlock()
	if !found {
		return errors.Wrapf(errors.ErrNotFound, "账号不存在: %s", accountID)
	}

	attempts := m.opts.StartRetryMaxAttempts
	lastError := ""
	for attempt := 1; attempt <= attempts; attempt++ {
		state := "starting"
		if attempt > 1 {
			state = "retrying"
		}
		startError := ""
		if attempt > 1 {
			startError = lastError
		}
		nowMs := time.Now().UnixMilli()
		retryCount := attempt - 1
		m.mu.Lock()
		m.setRuntimeStatusLocked(accountID, func(v *RuntimeView) {
			v.RuntimeState = state
			v.LastStartAt = nowMs
			v.StartRetryCount = retryCount
			v.LastStartError = startError
		})
		settings, revision := m.accountSettingsLocked(accountID)
		m.mu.Unlock()

		rt := NewAccountRuntime(AccountRuntimeOptions{
			Account:           account,
			Settings:          settings,
			SettingsRevision:  revision,
			SessionConfig:     m.opts.SessionConfig,
			Config:            m.config,
			HeartbeatInterval: m.opts.HeartbeatInterval,
			ShareFilePath:     filepath.Join(m.opts.DataDir, "share.txt"),
			OnLog:             m.onRuntimeLog,
			OnKicked:          m.onRuntimeKicked,
		})

		m.mu.Lock()
		m.runtimes[accountID] = rt
		m.mu.Unlock()

		err := m.startRuntime(ctx, rt)
		if err == nil {
			successMs := time.Now().UnixMilli()
			m.mu.Lock()
			m.setRuntimeStatusLocked(accountID, func(v *RuntimeView) {
				v.RuntimeState = "running"
				v.LastStartSuccessAt = successMs
				v.LastStartError = ""
				v.StartRetryCount = retryCount
			})
			m.mu.Unlock()
			return nil
		}

		rt.Stop()
		m.mu.Lock()
		delete(m.runtimes, accountID)
		m.mu.Unlock()

		lastError = NormalizeStartError(err.Error())
		canRetry := attempt < attempts && IsRetryableStartError(lastError)
		failState := "failed"
		if canRetry {
			failState = "retrying"
		}
		finalRetry := attempt
		m.mu.Lock()
		m.setRuntimeStatusLocked(accountID, func(v *RuntimeView) {
			v.RuntimeState = failState
			v.LastStartError = lastError
			v.StartRetryCount = finalRetry
		})
		m.mu.Unlock()

		if !canRetry {
			return errors.Newf("账号启动失败(重试%d/%d): %s", attempt, attempts, lastError)
		}
		delay := m.opts.StartRetryBaseDelay << (attempt - 1)
		if delay > m.opts.StartRetryMaxDelay {
			delay = m.opts.StartRetryMaxDelay
		}
		m.systemLog(fmt.Sprintf("账号启动失败 %s: %s，%.1fs 后重试(%d/%d)",
			accountID, lastError, delay.Seconds(), attempt, attempts), true, "start_retry", accountID)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
	return errors.Newf("账号启动失败: %s", lastError)
}

// StopAccount stops one runtime; stopping an unknown account only
// marks the status row.
func (m *Manager) StopAccount(accountID string) {
	accountID = strings.TrimSpace(accountID)
	m.mu.Lock()
	rt := m.runtimes[accountID]
	m.mu.Unlock()
	if rt != nil {
		rt.Stop()
	}
	m.mu.Lock()
	delete(m.runtimes, accountID)
	m.setRuntimeStatusLocked(accountID, func(v *RuntimeView) { v.RuntimeState = "stopped" })
	m.mu.Unlock()
}

// AccountStatus returns the live status for a running account or a
// zeroed snapshot for a stored-but-stopped one.
func (m *Manager) AccountStatus(accountID string) (*Status, error) {
	accountID = strings.TrimSpace(accountID)
	m.mu.Lock()
	rt := m.runtimes[accountID]
	m.mu.Unlock()
	if rt != nil {
		status := rt.Status()
		m.mu.Lock()
		status.RuntimeView = m.runtimeViewLocked(accountID, true)
		m.mu.Unlock()
		return status, nil
	}

	m.mu.Lock()
	account, found := m.findAccountLocked(accountID)
	if !found {
		m.mu.Unlock()
		return nil, errors.Wrap(errors.ErrNotFound, "账号不存在")
	}
	settings, revision := m.accountSettingsLocked(accountID)
	view := m.runtimeViewLocked(accountID, false)
	m.mu.Unlock()

	platform := account.Platform
	if platform == "" {
		platform = "qq"
	}
	status := &Status{}
	status.Profile.Platform = platform
	status.Limits = map[int64]*domain.OperationQuota{}
	status.Automation = settings.Automation
	status.PreferredSeed = settings.PreferredSeedID
	status.ConfigRevision = revision
	status.RuntimeView = view
	return status, nil
}

// Runtime returns the running runtime for an account or ErrNotRunning
// with the last start failure attached.
func (m *Manager) Runtime(accountID string) (*AccountRuntime, error) {
	accountID = strings.TrimSpace(accountID)
	m.mu.Lock()
	rt := m.runtimes[accountID]
	var view RuntimeView
	if rt == nil {
		view = m.runtimeViewLocked(accountID, false)
	}
	m.mu.Unlock()
	if rt != nil {
		return rt, nil
	}
	if reason := strings.TrimSpace(view.LastStartError); reason != "" {
		return nil, errors.Wrapf(errors.ErrNotRunning, "账号未运行，最近启动失败: %s", reason)
	}
	return nil, errors.Wrap(errors.ErrNotRunning, "账号未运行")
}

// Rankings works without a running runtime.
func (m *Manager) Rankings(accountID, sortBy string) []*domain.PlantRanking {
	if rt, err := m.Runtime(accountID); err == nil {
		return rt.Rankings(sortBy)
	}
	return domain.NewAnalytics(m.config).PlantRankings(sortBy)
}

// SetAutomation toggles one automation key for an account.
func (m *Manager) SetAutomation(accountID string, patch *AutomationPatch) (*SettingsView, error) {
	return m.SaveSettings(accountID, &SettingsPatch{Automation: patch})
}

// SaveSettings merges a patch into an account's configuration, bumps
// the revision and pushes the result to its running runtime.
func (m *Manager) SaveSettings(accountID string, patch *SettingsPatch) (*SettingsView, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "account_id 不能为空")
	}
	m.mu.Lock()
	current, _ := m.accountSettingsLocked(accountID)
	next := MergeSettings(current, patch)
	m.settings.AccountConfigs[accountID] = next
	m.settings.Revision++
	revision := m.settings.Revision
	saveJSONAtomic(m.settingsPath, &m.settings)
	rt := m.runtimes[accountID]
	m.mu.Unlock()

	if rt != nil {
		rt.ApplySettings(next, revision)
	}
	return m.Settings(accountID), nil
}

// Settings returns the effective settings view for an account.
func (m *Manager) Settings(accountID string) *SettingsView {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, _ := m.accountSettingsLocked(strings.TrimSpace(accountID))
	return &SettingsView{
		Intervals:        cfg.Intervals,
		Strategy:         cfg.Strategy,
		PreferredSeed:    cfg.PreferredSeedID,
		FriendQuietHours: cfg.FriendQuietHours,
		Automation:       cfg.Automation,
		UI:               m.settings.UI,
	}
}

// SetTheme persists the UI theme. Unknown values fall back to dark.
func (m *Manager) SetTheme(theme string) UITheme {
	value := strings.ToLower(strings.TrimSpace(theme))
	if value != "dark" && value != "light" {
		value = "dark"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.UI.Theme = value
	m.settings.Revision++
	saveJSONAtomic(m.settingsPath, &m.settings)
	return m.settings.UI
}

// Logs filters the runtime log buffer, newest first.
func (m *Manager) Logs(filter LogFilter) []*LogEntry {
	m.logMu.Lock()
	if m.logsDirty {
		m.persistLogsLocked(false)
	}
	rows := make([]*LogEntry, 0, len(m.globalLogs))
	rows = append(rows, m.globalLogs...)
	m.logMu.Unlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	if limit > 300 {
		limit = 300
	}
	keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))
	accountID := strings.TrimSpace(filter.AccountID)

	filtered := rows[:0]
	for _, row := range rows {
		if accountID != "" && row.AccountID != accountID {
			continue
		}
		if keyword != "" && !strings.Contains(row.searchText(), keyword) {
			continue
		}
		if filter.Module != "" && metaString(row.Meta, "module") != filter.Module {
			continue
		}
		if filter.Event != "" && metaString(row.Meta, "event") != filter.Event {
			continue
		}
		if filter.IsWarn != nil && row.IsWarn != *filter.IsWarn {
			continue
		}
		filtered = append(filtered, row)
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	reversed := make([]*LogEntry, 0, len(filtered))
	for i := len(filtered) - 1; i >= 0; i-- {
		reversed = append(reversed, filtered[i])
	}
	return reversed
}

// AccountLogs returns the lifecycle log, newest first.
func (m *Manager) AccountLogs(limit int) []*AccountLogEntry {
	m.logMu.Lock()
	if m.logsDirty {
		m.persistLogsLocked(false)
	}
	rows := append([]*AccountLogEntry(nil), m.accountLogs...)
	m.logMu.Unlock()

	if limit < 1 {
		limit = 100
	}
	if limit > 300 {
		limit = 300
	}
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	reversed := make([]*AccountLogEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		reversed = append(reversed, rows[i])
	}
	return reversed
}

// QRCreate starts a scan-login flow and returns the login URL payload.
func (m *Manager) QRCreate(ctx context.Context) (*qrlogin.Ticket, error) {
	return m.qr.Create(ctx)
}

// QRCheck polls a scan-login ticket.
func (m *Manager) QRCheck(ctx context.Context, code string) (*qrlogin.CheckResult, error) {
	return m.qr.Check(ctx, code)
}

// IsRetryableStartError classifies a normalized start error: network
// flakes retry, credential and handshake rejections do not.
func IsRetryableStartError(message string) bool {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return false
	}
	nonRetryable := []string{
		"missing login code",
		"code 不能为空",
		".login error=",
		"userservice.login error=",
		"账号不存在",
		"account_id",
		"invalid response status",
		" 400",
	}
	for _, word := range nonRetryable {
		if strings.Contains(text, word) {
			return false
		}
	}
	retryable := []string{
		"websocket disconnected",
		"websocket connect failed",
		"connect failed",
		"cannot connect",
		"request timeout",
		"timeout",
		"timed out",
		"connection reset",
		"broken pipe",
		"network",
		"temporarily unavailable",
		"ws",
	}
	for _, word := range retryable {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

// NormalizeStartError rewrites raw start failures into actionable
// operator messages. Credential material never appears in the output.
func NormalizeStartError(message string) string {
	text := strings.TrimSpace(message)
	if text == "" {
		return "未知错误"
	}
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "invalid response status") && strings.Contains(lowered, "400") {
		return "网关鉴权失败(HTTP 400)，登录凭据可能已失效，请重新绑定 code 或重新扫码绑定。"
	}
	if strings.Contains(lowered, "missing login code") || strings.Contains(lowered, "code 不能为空") {
		return "缺少登录凭据 code，请重新绑定 code 或重新扫码绑定。"
	}
	if strings.Contains(lowered, ".login error=") {
		return "登录鉴权失败，请重新绑定 code 或重新扫码绑定。原始错误: " + text
	}
	return text
}

func (m *Manager) startLock(accountID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.startLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.startLocks[accountID] = lock
	}
	return lock
}

func (m *Manager) findAccountLocked(accountID string) (Account, bool) {
	for _, account := range m.accounts.Accounts {
		if account.ID == accountID {
			return account, true
		}
	}
	return Account{}, false
}

func (m *Manager) accountSettingsLocked(accountID string) (AccountConfig, int64) {
	if cfg, ok := m.settings.AccountConfigs[accountID]; ok {
		return cfg, m.settings.Revision
	}
	return m.settings.DefaultAccountConfig, m.settings.Revision
}

func (m *Manager) runtimeViewLocked(accountID string, running bool) RuntimeView {
	view := m.runtimeData.Status[accountID]
	if running {
		view.RuntimeState = "running"
	} else if view.RuntimeState == "" {
		view.RuntimeState = "stopped"
	}
	return view
}

func (m *Manager) setRuntimeStatusLocked(accountID string, apply func(*RuntimeView)) {
	if accountID == "" {
		return
	}
	view := m.runtimeData.Status[accountID]
	apply(&view)
	m.runtimeData.Status[accountID] = view
	saveJSONAtomic(m.runtimePath, &m.runtimeData)
}

func (m *Manager) systemLog(message string, isWarn bool, event, accountID string) {
	if isWarn {
		logger.Warnw(message, "event", event, "accountId", accountID)
	} else {
		logger.Infow(message, "event", event, "accountId", accountID)
	}
	m.onRuntimeLog("", "系统", message, isWarn, map[string]any{"module": "system", "event": event, "accountId": accountID})
}

func (m *Manager) onRuntimeLog(accountID, tag, message string, isWarn bool, meta map[string]any) {
	entry := &LogEntry{
		Time:      time.Now().Format("2006-01-02 15:04:05"),
		Tag:       tag,
		Msg:       message,
		IsWarn:    isWarn,
		AccountID: accountID,
		Meta:      meta,
		Ts:        time.Now().UnixMilli(),
	}
	entry.indexSearchText()
	m.logMu.Lock()
	m.globalLogs = append(m.globalLogs, entry)
	if len(m.globalLogs) > m.opts.RuntimeLogMaxEntries {
		m.globalLogs = m.globalLogs[len(m.globalLogs)-m.opts.RuntimeLogMaxEntries:]
	}
	m.scheduleLogsPersistLocked()
	m.logMu.Unlock()
}

// onRuntimeKicked deletes the account the gate kicked off. Kicked
// credentials are dead; keeping the account would just fail restarts.
func (m *Manager) onRuntimeKicked(accountID, reason string) {
	m.addAccountLog("kickout_delete", "账号被踢下线，已删除: "+reason, accountID, "", reason)
	go func() {
		if _, err := m.DeleteAccount(accountID); err != nil {
			logger.Warnw("kicked account cleanup failed", "accountId", accountID, "error", err)
		}
	}()
}

func (m *Manager) addAccountLog(action, msg, accountID, accountName, reason string) {
	row := &AccountLogEntry{
		Time:        time.Now().Format("2006-01-02 15:04:05"),
		Action:      action,
		Msg:         msg,
		AccountID:   accountID,
		AccountName: accountName,
		Reason:      reason,
	}
	m.logMu.Lock()
	m.accountLogs = append(m.accountLogs, row)
	maxEntries := m.accountLogMax()
	if len(m.accountLogs) > maxEntries {
		m.accountLogs = m.accountLogs[len(m.accountLogs)-maxEntries:]
	}
	m.scheduleLogsPersistLocked()
	m.logMu.Unlock()
}

func (m *Manager) accountLogMax() int {
	maxEntries := m.opts.RuntimeLogMaxEntries
	if maxEntries < 300 {
		maxEntries = 300
	}
	if maxEntries > 2000 {
		maxEntries = 2000
	}
	return maxEntries
}

// scheduleLogsPersistLocked flushes when the pending batch or the
// flush interval is reached. Callers hold logMu.
func (m *Manager) scheduleLogsPersistLocked() {
	if !m.opts.PersistRuntimeLogs {
		return
	}
	m.logsDirty = true
	m.logsPending++
	if m.logsPending >= m.opts.RuntimeLogFlushBatch ||
		time.Since(m.logsLastFlush) >= m.opts.RuntimeLogFlushInterval {
		m.persistLogsLocked(false)
	}
}

func (m *Manager) persistLogs(force bool) {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	m.persistLogsLocked(force)
}

func (m *Manager) persistLogsLocked(force bool) {
	if !m.opts.PersistRuntimeLogs {
		return
	}
	if !force && !m.logsDirty {
		return
	}
	payload := logsFile{Global: m.globalLogs, Account: m.accountLogs}
	saveJSONAtomic(m.logsPath, &payload)
	m.logsDirty = false
	m.logsPending = 0
	m.logsLastFlush = time.Now()
}

func (m *Manager) loadPersistedLogs() {
	var stored logsFile
	loadJSONFile(m.logsPath, &stored)
	if len(stored.Global) > m.opts.RuntimeLogMaxEntries {
		stored.Global = stored.Global[len(stored.Global)-m.opts.RuntimeLogMaxEntries:]
	}
	maxAccount := m.accountLogMax()
	if len(stored.Account) > maxAccount {
		stored.Account = stored.Account[len(stored.Account)-maxAccount:]
	}
	for _, row := range stored.Global {
		row.indexSearchText()
	}
	m.logMu.Lock()
	m.globalLogs = stored.Global
	m.accountLogs = stored.Account
	m.logsDirty = false
	m.logsPending = 0
	m.logsLastFlush = time.Now()
	m.logMu.Unlock()
}

// mergeAccount overlays non-empty payload fields on the stored row.
func mergeAccount(current, payload Account) Account {
	merged := current
	if payload.Name != "" {
		merged.Name = payload.Name
	}
	if payload.Platform != "" {
		merged.Platform = payload.Platform
	}
	if payload.Code != "" {
		merged.Code = payload.Code
	}
	if payload.Uin != "" {
		merged.Uin = payload.Uin
	}
	if payload.QQ != "" {
		merged.QQ = payload.QQ
	}
	if payload.Avatar != "" {
		merged.Avatar = payload.Avatar
	}
	return merged
}

func normalizeAccounts(raw accountsFile) accountsFile {
	normalized := accountsFile{Accounts: make([]Account, 0, len(raw.Accounts)), NextID: raw.NextID}
	var maxID int64
	for _, account := range raw.Accounts {
		account.ID = strings.TrimSpace(account.ID)
		if account.ID == "" {
			continue
		}
		var numeric int64
		fmt.Sscanf(account.ID, "%d", &numeric)
		if numeric > maxID {
			maxID = numeric
		}
		normalized.Accounts = append(normalized.Accounts, account)
	}
	if normalized.NextID < 1 {
		normalized.NextID = 1
	}
	if len(normalized.Accounts) > 0 && normalized.NextID <= maxID {
		normalized.NextID = maxID + 1
	}
	return normalized
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if value, ok := meta[key].(string); ok {
		return value
	}
	return ""
}

func loadJSONFile(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warnw("parse data file failed, using defaults", "path", path, "error", err)
	}
}

// saveJSONAtomic writes via temp-and-rename so a crash never leaves a
// truncated file.
func saveJSONAtomic(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Errorw("marshal data file failed", "path", path, "error", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Errorw("write data file failed", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Errorw("rename data file failed", "path", path, "error", err)
	}
}

// Package router parses chat commands and drives the account manager,
// binding store and rate limiter on behalf of chat users.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/logger"
	"qq-farm-runtime/ratelimit"
	"qq-farm-runtime/runtime"
	"qq-farm-runtime/state"
)

// Reply is one outgoing message. PreferImage marks replies a renderer
// may turn into a picture card.
type Reply struct {
	Text        string `json:"text"`
	ImageURL    string `json:"imageUrl,omitempty"`
	PreferImage bool   `json:"preferImage"`
}

// Request is one inbound chat command. Origin is an opaque handle the
// notify callback receives for asynchronous follow-ups.
type Request struct {
	UserID  string
	GroupID string
	Message string
	Origin  any
}

// NotifyFunc delivers an active (unprompted) message back to the chat.
type NotifyFunc func(origin any, text string)

// Options wires a Router's collaborators. PerUserInFlight caps how
// many commands one user may have running at once (default 1).
type Options struct {
	Manager         *runtime.Manager
	Store           *state.Store
	Limiter         *ratelimit.Limiter
	IsSuperAdmin    func(userID string) bool
	Notify          NotifyFunc
	PerUserInFlight int
}

// Router dispatches tokenized commands. Safe for concurrent use.
type Router struct {
	manager         *runtime.Manager
	store           *state.Store
	limiter         *ratelimit.Limiter
	isSuperAdmin    func(string) bool
	notify          NotifyFunc
	perUserInFlight int

	dispatchFn func(ctx context.Context, req Request, userID string, tokens []string) ([]*Reply, error)

	inFlightMu sync.Mutex
	inFlight   map[string]int

	qrMu    sync.Mutex
	qrTasks map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) *Router {
	isSuper := opts.IsSuperAdmin
	if isSuper == nil {
		isSuper = func(string) bool { return false }
	}
	if opts.PerUserInFlight < 1 {
		opts.PerUserInFlight = 1
	}
	r := &Router{
		manager:         opts.Manager,
		store:           opts.Store,
		limiter:         opts.Limiter,
		isSuperAdmin:    isSuper,
		notify:          opts.Notify,
		perUserInFlight: opts.PerUserInFlight,
		inFlight:        map[string]int{},
		qrTasks:         map[string]context.CancelFunc{},
	}
	r.dispatchFn = r.dispatch
	return r
}

// Shutdown cancels every in-flight scan-login poll and waits for them.
func (r *Router) Shutdown() {
	r.qrMu.Lock()
	for _, cancel := range r.qrTasks {
		cancel()
	}
	r.qrTasks = map[string]context.CancelFunc{}
	r.qrMu.Unlock()
	r.wg.Wait()
}

const qrPollAttempts = 120

var (
	plainTokenRe = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	timeRe       = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// compoundCommands splits the glued two-word forms users type without
// a space.
var compoundCommands = map[string][]string{
	"农田查看":   {"农田", "查看"},
	"农田操作":   {"农田", "操作"},
	"好友列表":   {"好友", "列表"},
	"账号查看":   {"账号", "查看"},
	"账号启动":   {"账号", "启动"},
	"账号停止":   {"账号", "停止"},
	"账号解绑":   {"账号", "解绑"},
	"账号绑定扫码": {"账号", "绑定扫码"},
	"账号取消扫码": {"账号", "取消扫码"},
	"自动化查看":  {"自动化", "查看"},
	"背包查看":   {"背包", "查看"},
	"种子列表":   {"种子", "列表"},
	"服务状态":   {"服务", "状态"},
	"服务启动":   {"服务", "启动"},
	"服务停止":   {"服务", "停止"},
	"服务重启":   {"服务", "重启"},
}

var (
	farmOps         = stringSet("all", "harvest", "clear", "plant", "upgrade")
	friendOps       = stringSet("steal", "water", "weed", "bug", "bad")
	analyticsSorts  = stringSet("exp", "fert", "profit", "fert_profit", "level")
	strategies      = stringSet("preferred", "level", "max_exp", "max_fert_exp", "max_profit", "max_fert_profit")
	fertilizerModes = stringSet("both", "normal", "organic", "none")
)

func stringSet(values ...string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Tokenize splits a command line on whitespace.
func Tokenize(message string) []string {
	fields := strings.Fields(strings.TrimSpace(message))
	return fields
}

// NormalizeCompound expands a glued first token into its two-word form.
func NormalizeCompound(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	mapped, ok := compoundCommands[strings.TrimSpace(tokens[0])]
	if !ok {
		return tokens
	}
	return append(append([]string{}, mapped...), tokens[1:]...)
}

// Handle runs one command end to end: prefix strip, access checks,
// rate-limit lease, dispatch.
func (r *Router) Handle(ctx context.Context, req Request) []*Reply {
	tokens := Tokenize(req.Message)
	if len(tokens) > 0 {
		first := token(tokens[0])
		switch {
		case first == "qfarm" || tokens[0] == "农场":
			tokens = tokens[1:]
		case strings.HasPrefix(strings.ToLower(strings.TrimSpace(tokens[0])), "qfarm"):
			suffix := strings.TrimSpace(strings.TrimSpace(tokens[0])[5:])
			if suffix != "" {
				tokens = append([]string{suffix}, tokens[1:]...)
			}
		}
	}
	tokens = NormalizeCompound(tokens)
	if len(tokens) == 0 {
		return []*Reply{{Text: helpText}}
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return []*Reply{{Text: "无法识别发送者身份，拒绝执行。"}}
	}

	top := token(tokens[0])
	if isSuperAdminCommand(top) && !r.isSuperAdmin(userID) {
		return []*Reply{{Text: "权限不足：该命令仅超级管理员可用。"}}
	}
	if ok, deny := r.checkAccess(userID, strings.TrimSpace(req.GroupID)); !ok && !r.isSuperAdmin(userID) {
		return []*Reply{{Text: deny}}
	}

	if !r.enterUser(userID) {
		return []*Reply{{Text: "您的上一条命令仍在执行中，请稍候再试。"}}
	}
	defer r.leaveUser(userID)

	isWrite := isWriteCommand(tokens)
	accountForLock := ""
	if isWrite {
		accountForLock = r.store.BoundAccount(userID)
	}
	lease, err := r.limiter.Acquire(ctx, userID, isWrite, accountForLock)
	if err != nil {
		return []*Reply{{Text: commandErrorText(err)}}
	}
	defer lease.Release()

	replies, err := r.safeDispatch(ctx, req, userID, tokens)
	if err != nil {
		logger.Warnw("命令处理失败", "userId", userID, "command", top, "error", err)
		return []*Reply{{Text: commandErrorText(err)}}
	}
	return markRenderCandidates(replies)
}

// enterUser counts one in-flight command for the user, refusing once
// the cap is reached.
func (r *Router) enterUser(userID string) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if r.inFlight[userID] >= r.perUserInFlight {
		return false
	}
	r.inFlight[userID]++
	return true
}

func (r *Router) leaveUser(userID string) {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if r.inFlight[userID] <= 1 {
		delete(r.inFlight, userID)
	} else {
		r.inFlight[userID]--
	}
}

// safeDispatch contains handler panics so one bad command cannot kill
// the bridge; a recovered panic surfaces as an internal failure.
func (r *Router) safeDispatch(ctx context.Context, req Request, userID string, tokens []string) (replies []*Reply, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Mark(errors.Newf("%v", rec), errors.ErrInternal)
		}
	}()
	return r.dispatchFn(ctx, req, userID, tokens)
}

func commandErrorText(err error) string {
	if errors.Is(err, errors.ErrRateLimited) {
		return err.Error()
	}
	if errors.Is(err, errors.ErrInternal) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("命令执行异常: %v", err)
	}
	return fmt.Sprintf("操作失败: %v", err)
}

func (r *Router) dispatch(ctx context.Context, req Request, userID string, tokens []string) ([]*Reply, error) {
	cmd := token(tokens[0])
	args := tokens[1:]
	switch cmd {
	case "帮助", "help", "h", "?":
		return textReply(helpText), nil
	case "服务", "service":
		return r.cmdService(ctx, args)
	case "账号", "account":
		return r.cmdAccount(ctx, req, userID, args)
	case "状态", "status":
		return r.cmdStatus(userID)
	case "农田", "farm":
		return r.cmdFarm(ctx, userID, args)
	case "好友", "friend":
		return r.cmdFriend(ctx, userID, args)
	case "种子", "seed", "seeds":
		return r.cmdSeeds(ctx, userID, args)
	case "背包", "bag":
		return r.cmdBag(ctx, userID, args)
	case "分析", "analytics", "analysis":
		return r.cmdAnalytics(userID, args)
	case "自动化", "automation", "auto":
		return r.cmdAutomation(userID, args)
	case "设置", "setting", "settings":
		return r.cmdSettings(userID, args)
	case "主题", "theme":
		return r.cmdTheme(args)
	case "日志", "log", "logs":
		return r.cmdLogs(userID, args)
	case "账号日志", "accountlogs", "account-logs":
		return r.cmdAccountLogs(args)
	case "调试", "debug":
		return r.cmdDebug(ctx, userID, args)
	case "白名单", "whitelist":
		return r.cmdWhitelist(args)
	}
	return textReply(fmt.Sprintf("未知命令: %s\n\n%s", tokens[0], helpText)), nil
}

func (r *Router) cmdService(ctx context.Context, args []string) ([]*Reply, error) {
	action := "状态"
	if len(args) > 0 {
		action = token(args[0])
	}
	switch action {
	case "状态", "status":
		return textReply(strings.Join(formatServiceStatus(r.manager.ServiceStatus()), "\n")), nil
	case "启动", "start":
		if err := r.manager.Start(ctx); err != nil {
			return nil, err
		}
		return textReply("服务已启动。"), nil
	case "停止", "stop":
		r.manager.Stop()
		return textReply("服务已停止。"), nil
	case "重启", "restart":
		r.manager.Stop()
		if err := r.manager.Start(ctx); err != nil {
			return nil, err
		}
		return textReply("服务已重启。"), nil
	}
	return textReply("用法: qfarm 服务 状态|启动|停止|重启"), nil
}

func (r *Router) cmdAccount(ctx context.Context, req Request, userID string, args []string) ([]*Reply, error) {
	if len(args) == 0 {
		return textReply("用法: qfarm 账号 查看|绑定|解绑|启动|停止|重连|取消扫码"), nil
	}

	sub := token(args[0])
	switch {
	case sub == "查看" || sub == "view":
		info := r.store.BoundAccountInfo(userID)
		if info == nil {
			return textReply("你还没有绑定账号。使用: qfarm 账号 绑定 code <code> [备注名]"), nil
		}
		view := r.manager.AccountByID(info.AccountID)
		if view == nil {
			r.store.UnbindAccount(userID)
			return textReply("检测到绑定账号已不存在，已自动解绑，请重新绑定。"), nil
		}
		lines := []string{
			"【账号绑定】",
			"用户ID: " + userID,
			"账号ID: " + view.ID,
			"账号名: " + orDash(view.Name),
			"平台: " + orDash(view.Platform),
			"QQ/UIN: " + orDash(firstNonEmpty(view.QQ, view.Uin)),
			"运行中: " + yesNo(view.Running),
			"运行态: " + view.RuntimeState,
			fmt.Sprintf("启动重试次数: %d", view.StartRetryCount),
		}
		if view.LastStartError != "" {
			lines = append(lines, "最近启动错误: "+view.LastStartError)
		}
		return textReply(strings.Join(lines, "\n")), nil

	case sub == "绑定扫码" || sub == "bindscan" || sub == "扫码绑定",
		(sub == "绑定" || sub == "bind") && len(args) >= 2 && (token(args[1]) == "扫码" || token(args[1]) == "scan"):
		return r.startQRBind(ctx, req, userID)

	case sub == "取消扫码" || sub == "cancelscan":
		r.qrMu.Lock()
		cancel := r.qrTasks[userID]
		delete(r.qrTasks, userID)
		r.qrMu.Unlock()
		if cancel == nil {
			return textReply("当前没有进行中的扫码绑定任务。"), nil
		}
		cancel()
		return textReply("已取消扫码绑定。"), nil

	case sub == "绑定" || sub == "bind":
		if len(args) < 3 || token(args[1]) != "code" {
			return textReply("用法: qfarm 账号 绑定 code <code> [备注名]"), nil
		}
		code := strings.TrimSpace(args[2])
		if code == "" {
			return textReply("code 不能为空。"), nil
		}
		name := strings.TrimSpace(strings.Join(args[3:], " "))
		view, err := r.bindAccountWithCode(ctx, userID, code, name, nil)
		if err != nil {
			return nil, err
		}
		return textReply(fmt.Sprintf("绑定成功: 账号ID=%s 名称=%s", view.ID, orDash(view.Name))), nil

	case sub == "解绑" || sub == "unbind":
		accountID := r.store.BoundAccount(userID)
		if accountID == "" {
			return textReply("你当前没有已绑定账号。"), nil
		}
		if _, err := r.manager.DeleteAccount(accountID); err != nil {
			logger.Warnw("删除账号失败(忽略)", "accountId", accountID, "error", err)
		}
		r.store.UnbindAccount(userID)
		return textReply(fmt.Sprintf("解绑成功，账号 %s 已删除并解除绑定。", accountID)), nil

	case sub == "启动" || sub == "start":
		accountID, _, err := r.requireBoundAccount(userID)
		if err != nil {
			return nil, err
		}
		if err := r.manager.StartAccount(ctx, accountID); err != nil {
			return nil, err
		}
		status, err := r.manager.AccountStatus(accountID)
		if err != nil {
			return nil, err
		}
		return textReply(fmt.Sprintf("账号启动完成: state=%s, retries=%d", status.RuntimeState, status.StartRetryCount)), nil

	case sub == "停止" || sub == "stop":
		accountID, _, err := r.requireBoundAccount(userID)
		if err != nil {
			return nil, err
		}
		r.manager.StopAccount(accountID)
		return textReply("账号停止指令已发送。"), nil

	case sub == "重连" || sub == "reconnect":
		accountID, _, err := r.requireBoundAccount(userID)
		if err != nil {
			return nil, err
		}
		if len(args) >= 2 {
			newCode := strings.TrimSpace(args[1])
			if newCode == "" {
				return textReply("reconnect 的 code 不能为空。"), nil
			}
			if _, err := r.manager.UpsertAccount(ctx, runtime.Account{ID: accountID, Code: newCode}); err != nil {
				return nil, err
			}
			return textReply("账号 code 已更新并触发重连。"), nil
		}
		r.manager.StopAccount(accountID)
		if err := r.manager.StartAccount(ctx, accountID); err != nil {
			return nil, err
		}
		return textReply("账号已执行停止+启动重连。"), nil
	}
	return textReply("未知账号子命令。"), nil
}

func (r *Router) cmdStatus(userID string) ([]*Reply, error) {
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	status, err := r.manager.AccountStatus(accountID)
	if err != nil {
		return nil, err
	}
	return textReply(strings.Join(formatStatus(status), "\n")), nil
}

func (r *Router) cmdFarm(ctx context.Context, userID string, args []string) ([]*Reply, error) {
	if len(args) == 0 {
		return textReply("用法: qfarm 农田 查看 | qfarm 农田 操作 all|harvest|clear|plant|upgrade"), nil
	}
	sub := token(args[0])
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	switch sub {
	case "查看", "view":
		rt, err := r.manager.Runtime(accountID)
		if err != nil {
			return nil, err
		}
		view, err := rt.Lands(ctx)
		if err != nil {
			return nil, err
		}
		return textReply(strings.Join(formatLands(view), "\n")), nil
	case "操作", "op", "operate":
		if len(args) < 2 {
			return textReply("用法: qfarm 农田 操作 all|harvest|clear|plant|upgrade"), nil
		}
		opType := token(args[1])
		if !farmOps[opType] {
			return textReply("不支持的农田操作: " + opType), nil
		}
		rt, err := r.manager.Runtime(accountID)
		if err != nil {
			return nil, err
		}
		if _, err := rt.DoFarmOperation(ctx, opType); err != nil {
			return nil, err
		}
		return textReply("农田操作已提交: " + opType), nil
	}
	return textReply("未知农田子命令。"), nil
}

func (r *Router) cmdFriend(ctx context.Context, userID string, args []string) ([]*Reply, error) {
	if len(args) == 0 {
		return textReply("用法: qfarm 好友 列表 | 好友 农田 <gid> | 好友 操作 <gid> <op>"), nil
	}
	sub := token(args[0])
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	rt, err := r.manager.Runtime(accountID)
	if err != nil {
		return nil, err
	}
	switch sub {
	case "列表", "list":
		return textReply(strings.Join(formatFriends(rt.Friends(ctx)), "\n")), nil
	case "农田", "lands":
		if len(args) < 2 {
			return textReply("用法: qfarm 好友 农田 <gid>"), nil
		}
		gid, perr := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
		if perr != nil || gid <= 0 {
			return textReply("gid 必须是正整数。"), nil
		}
		view, buckets, err := rt.FriendLands(ctx, gid)
		if err != nil {
			return nil, err
		}
		return textReply(strings.Join(formatFriendLands(gid, view, buckets), "\n")), nil
	case "操作", "op", "operate":
		if len(args) < 3 {
			return textReply("用法: qfarm 好友 操作 <gid> steal|water|weed|bug|bad"), nil
		}
		gid, perr := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
		if perr != nil || gid <= 0 {
			return textReply("gid 必须是正整数。"), nil
		}
		opType := token(args[2])
		if !friendOps[opType] {
			return textReply("不支持的好友操作: " + opType), nil
		}
		result := rt.DoFriendOp(ctx, gid, opType)
		text := fmt.Sprintf("好友操作完成: gid=%d, op=%s", gid, opType)
		if result != nil {
			if result.Message != "" {
				text += "\n结果: " + result.Message
			}
			text += fmt.Sprintf("\n数量: %d", result.Count)
		}
		return textReply(text), nil
	}
	return textReply("未知好友子命令。"), nil
}

func (r *Router) cmdSeeds(ctx context.Context, userID string, args []string) ([]*Reply, error) {
	if len(args) > 0 {
		sub := token(args[0])
		if sub != "查看" && sub != "list" && sub != "列表" {
			return textReply("用法: qfarm 种子 列表"), nil
		}
	}
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	rt, err := r.manager.Runtime(accountID)
	if err != nil {
		return nil, err
	}
	seeds, err := rt.Seeds(ctx)
	if err != nil {
		return nil, err
	}
	return textReply(strings.Join(formatSeeds(seeds), "\n")), nil
}

func (r *Router) cmdBag(ctx context.Context, userID string, args []string) ([]*Reply, error) {
	if len(args) > 0 {
		sub := token(args[0])
		if sub != "查看" && sub != "view" && sub != "列表" && sub != "list" {
			return textReply("用法: qfarm 背包 查看"), nil
		}
	}
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	rt, err := r.manager.Runtime(accountID)
	if err != nil {
		return nil, err
	}
	bag, err := rt.Bag(ctx)
	if err != nil {
		return nil, err
	}
	return textReply(strings.Join(formatBag(bag), "\n")), nil
}

func (r *Router) cmdAnalytics(userID string, args []string) ([]*Reply, error) {
	sortBy := "exp"
	if len(args) > 0 {
		sortBy = token(args[0])
	}
	if !analyticsSorts[sortBy] {
		return textReply("用法: qfarm 分析 [exp|fert|profit|fert_profit|level]"), nil
	}
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	rows := r.manager.Rankings(accountID, sortBy)
	return textReply(strings.Join(formatRankings(sortBy, rows), "\n")), nil
}

func (r *Router) cmdAutomation(userID string, args []string) ([]*Reply, error) {
	if len(args) == 0 {
		return textReply("用法: qfarm 自动化 查看 | 设置 <key> <on|off> | 施肥 <both|normal|organic|none> | 全开 | 全关"), nil
	}
	sub := token(args[0])
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}

	switch sub {
	case "查看", "view":
		settings := r.manager.Settings(accountID)
		return textReply(strings.Join(formatAutomation(settings.Automation), "\n")), nil

	case "全开", "allon", "全关", "alloff":
		value := sub == "全开" || sub == "allon"
		if _, err := r.manager.SetAutomation(accountID, allAutomationPatch(value)); err != nil {
			return nil, err
		}
		if value {
			return textReply("自动化已全部开启。"), nil
		}
		return textReply("自动化已全部关闭。"), nil

	case "设置", "set":
		if len(args) < 3 {
			return textReply("用法: qfarm 自动化 设置 <key> <on|off>"), nil
		}
		key := token(args[1])
		value := parseBool(args[2])
		patch := automationPatch(key, value)
		if patch == nil || value == nil {
			return textReply("自动化设置参数非法。"), nil
		}
		if _, err := r.manager.SetAutomation(accountID, patch); err != nil {
			return nil, err
		}
		return textReply(fmt.Sprintf("自动化已更新: %s=%v", key, *value)), nil

	case "施肥", "fertilizer":
		if len(args) < 2 {
			return textReply("用法: qfarm 自动化 施肥 <both|normal|organic|none>"), nil
		}
		mode := token(args[1])
		if !fertilizerModes[mode] {
			return textReply("施肥模式非法，仅支持 both|normal|organic|none"), nil
		}
		view, err := r.manager.SaveSettings(accountID, &runtime.SettingsPatch{
			Automation: &runtime.AutomationPatch{Fertilizer: &mode},
		})
		if err != nil {
			return nil, err
		}
		// Older settings files may miss the automation block entirely;
		// re-issue the single-key write when the merge did not stick.
		if token(view.Automation.Fertilizer) != mode {
			if _, err := r.manager.SetAutomation(accountID, &runtime.AutomationPatch{Fertilizer: &mode}); err != nil {
				return nil, err
			}
			return textReply("施肥模式已更新: " + mode + "（兼容回退已启用）"), nil
		}
		return textReply("施肥模式已更新: " + mode), nil
	}
	return textReply("未知自动化子命令。"), nil
}

func (r *Router) cmdSettings(userID string, args []string) ([]*Reply, error) {
	if len(args) == 0 {
		return textReply("用法: qfarm 设置 策略|种子|间隔|静默 ..."), nil
	}
	sub := token(args[0])
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}

	switch sub {
	case "策略", "strategy":
		if len(args) < 2 {
			return textReply("用法: qfarm 设置 策略 <preferred|level|max_exp|max_fert_exp|max_profit|max_fert_profit>"), nil
		}
		strategy := token(args[1])
		if !strategies[strategy] {
			return textReply("策略非法。"), nil
		}
		if _, err := r.manager.SaveSettings(accountID, &runtime.SettingsPatch{Strategy: &strategy}); err != nil {
			return nil, err
		}
		return textReply("策略已更新: " + strategy), nil

	case "种子", "seed":
		if len(args) < 2 {
			return textReply("用法: qfarm 设置 种子 <seedId>"), nil
		}
		seedID, perr := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
		if perr != nil || seedID < 0 {
			return textReply("seedId 必须 >= 0。"), nil
		}
		if _, err := r.manager.SaveSettings(accountID, &runtime.SettingsPatch{PreferredSeedID: &seedID}); err != nil {
			return nil, err
		}
		return textReply(fmt.Sprintf("偏好种子已更新: %d", seedID)), nil

	case "间隔", "interval":
		if len(args) < 4 {
			return textReply("用法: qfarm 设置 间隔 农场 <minSec> <maxSec> | 间隔 好友 <minSec> <maxSec>"), nil
		}
		target := token(args[1])
		minSec, err1 := strconv.Atoi(strings.TrimSpace(args[2]))
		maxSec, err2 := strconv.Atoi(strings.TrimSpace(args[3]))
		if err1 != nil || err2 != nil || minSec < 0 || maxSec < 0 {
			return textReply("间隔参数必须是正整数秒。"), nil
		}
		if minSec < 1 {
			minSec = 1
		}
		if maxSec < 1 {
			maxSec = 1
		}
		if minSec > maxSec {
			return textReply("间隔参数非法：minSec 不能大于 maxSec。"), nil
		}
		patch := &runtime.IntervalsPatch{}
		switch target {
		case "农场", "farm":
			patch.FarmMin = &minSec
			patch.FarmMax = &maxSec
			patch.Farm = &minSec
		case "好友", "friend":
			patch.FriendMin = &minSec
			patch.FriendMax = &maxSec
			patch.Friend = &minSec
		default:
			return textReply("用法: qfarm 设置 间隔 农场 <minSec> <maxSec> | 间隔 好友 <minSec> <maxSec>"), nil
		}
		if _, err := r.manager.SaveSettings(accountID, &runtime.SettingsPatch{Intervals: patch}); err != nil {
			return nil, err
		}
		return textReply(fmt.Sprintf("间隔已更新: %s %d-%ds", target, minSec, maxSec)), nil

	case "静默", "quiet":
		if len(args) < 4 {
			return textReply("用法: qfarm 设置 静默 <on|off> <HH:MM> <HH:MM>"), nil
		}
		enabled := parseBool(args[1])
		start := strings.TrimSpace(args[2])
		end := strings.TrimSpace(args[3])
		if enabled == nil {
			return textReply("静默开关非法，请使用 on/off。"), nil
		}
		if !isValidTime(start) || !isValidTime(end) {
			return textReply("时间格式非法，请使用 HH:MM（24小时制）。"), nil
		}
		if _, err := r.manager.SaveSettings(accountID, &runtime.SettingsPatch{
			FriendQuietHours: &runtime.QuietHoursPatch{Enabled: enabled, Start: &start, End: &end},
		}); err != nil {
			return nil, err
		}
		return textReply(fmt.Sprintf("好友静默已更新: enabled=%v, %s-%s", *enabled, start, end)), nil
	}
	return textReply("未知设置子命令。"), nil
}

func (r *Router) cmdTheme(args []string) ([]*Reply, error) {
	if len(args) == 0 {
		return textReply("用法: qfarm 主题 <dark|light>"), nil
	}
	theme := token(args[0])
	if theme != "dark" && theme != "light" {
		return textReply("主题仅支持 dark|light"), nil
	}
	r.manager.SetTheme(theme)
	if _, err := r.store.SetRenderTheme(theme); err != nil {
		logger.Warnw("写入渲染主题失败(忽略)", "theme", theme, "error", err)
	}
	return textReply("面板主题已更新: " + theme), nil
}

func (r *Router) cmdLogs(userID string, args []string) ([]*Reply, error) {
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	limit, options := parseKeyValueArgs(args)
	safeLimit := 50
	if limit > 0 {
		safeLimit = limit
		if safeLimit > 300 {
			safeLimit = 300
		}
	}
	filter := runtime.LogFilter{
		AccountID: accountID,
		Limit:     safeLimit,
		Module:    options["module"],
		Event:     options["event"],
		Keyword:   options["keyword"],
	}
	switch options["isWarn"] {
	case "1", "true":
		yes := true
		filter.IsWarn = &yes
	case "0", "false":
		no := false
		filter.IsWarn = &no
	}
	rows := r.manager.Logs(filter)
	lines := []string{fmt.Sprintf("【日志】数量: %d (limit=%d)", len(rows), safeLimit)}
	if len(rows) == 0 {
		lines = append(lines, "无匹配日志。")
		return textReply(strings.Join(lines, "\n")), nil
	}
	for _, row := range rows {
		level := "INFO"
		if row.IsWarn {
			level = "WARN"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s [%s] %s", level, row.Time, row.Tag, row.Msg))
	}
	return textReply(strings.Join(lines, "\n")), nil
}

func (r *Router) cmdAccountLogs(args []string) ([]*Reply, error) {
	limit := 50
	if len(args) > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(args[0])); err == nil {
			limit = n
			if limit < 1 {
				limit = 1
			}
			if limit > 300 {
				limit = 300
			}
		}
	}
	rows := r.manager.AccountLogs(limit)
	lines := []string{fmt.Sprintf("【账号日志】数量: %d (limit=%d)", len(rows), limit)}
	if len(rows) == 0 {
		lines = append(lines, "暂无账号日志。")
		return textReply(strings.Join(lines, "\n")), nil
	}
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("- %s [%s] account=%s/%s %s",
			row.Time, row.Action, row.AccountID, row.AccountName, row.Msg))
	}
	return textReply(strings.Join(lines, "\n")), nil
}

func (r *Router) cmdDebug(ctx context.Context, userID string, args []string) ([]*Reply, error) {
	if len(args) == 0 {
		return textReply("用法: qfarm 调试 出售"), nil
	}
	sub := token(args[0])
	if sub != "出售" && sub != "sell" {
		return textReply("调试子命令仅支持: 出售"), nil
	}
	accountID, _, err := r.requireBoundAccount(userID)
	if err != nil {
		return nil, err
	}
	rt, err := r.manager.Runtime(accountID)
	if err != nil {
		return nil, err
	}
	if _, err := rt.DebugSell(ctx); err != nil {
		return nil, err
	}
	return textReply("调试出售已触发。"), nil
}

func (r *Router) cmdWhitelist(args []string) ([]*Reply, error) {
	if len(args) < 2 {
		return textReply("用法: qfarm 白名单 用户|群 列表|添加|删除 <id>"), nil
	}
	target := token(args[0])
	action := token(args[1])
	isUser := target == "用户" || target == "user"
	isGroup := target == "群" || target == "group"
	if !isUser && !isGroup {
		return textReply("白名单目标仅支持: 用户|群"), nil
	}

	if action == "列表" || action == "list" {
		items := r.store.WhitelistUsers()
		title := "用户白名单"
		if isGroup {
			items = r.store.WhitelistGroups()
			title = "群白名单"
		}
		lines := []string{fmt.Sprintf("【%s】数量: %d", title, len(items))}
		if len(items) == 0 {
			lines = append(lines, "空")
		}
		for _, value := range items {
			lines = append(lines, "- "+value)
		}
		return textReply(strings.Join(lines, "\n")), nil
	}

	if len(args) < 3 {
		return textReply("请提供要操作的 ID。"), nil
	}
	targetID := strings.TrimSpace(args[2])
	if targetID == "" {
		return textReply("ID 不能为空。"), nil
	}

	switch action {
	case "添加", "add":
		changed := false
		if isUser {
			changed = r.store.AddWhitelistUser(targetID)
		} else {
			changed = r.store.AddWhitelistGroup(targetID)
		}
		if changed {
			return textReply("已添加: " + targetID), nil
		}
		return textReply("已存在: " + targetID), nil
	case "删除", "移除", "del", "remove":
		changed := false
		if isUser {
			changed = r.store.RemoveWhitelistUser(targetID)
		} else {
			changed = r.store.RemoveWhitelistGroup(targetID)
		}
		if changed {
			return textReply("已删除: " + targetID), nil
		}
		return textReply("不存在: " + targetID), nil
	}
	return textReply("白名单动作仅支持 列表|添加|删除"), nil
}

// startQRBind creates a scan-login ticket and polls it in the
// background; the outcome arrives through the notify callback.
func (r *Router) startQRBind(ctx context.Context, req Request, userID string) ([]*Reply, error) {
	r.qrMu.Lock()
	_, busy := r.qrTasks[userID]
	r.qrMu.Unlock()
	if busy {
		return textReply("已有扫码绑定任务进行中，请先取消或等待完成。"), nil
	}

	ticket, err := r.manager.QRCreate(ctx)
	if err != nil {
		return nil, err
	}
	if ticket.Code == "" {
		return nil, errors.New("扫码绑定失败：未获取到 code。")
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	r.qrMu.Lock()
	r.qrTasks[userID] = cancel
	r.qrMu.Unlock()
	r.wg.Add(1)
	go r.pollQRLogin(pollCtx, userID, ticket.Code, req.Origin)

	lines := []string{
		"已创建扫码登录任务，请在 120 秒内完成扫码。",
		"轮询code: " + ticket.Code,
	}
	if ticket.URL != "" {
		lines = append(lines, "登录链接: "+ticket.URL)
	}
	replies := []*Reply{{Text: strings.Join(lines, "\n")}}
	if ticket.QRCode != "" {
		replies = append(replies, &Reply{ImageURL: ticket.QRCode})
	}
	return replies, nil
}

func (r *Router) pollQRLogin(ctx context.Context, userID, code string, origin any) {
	defer r.wg.Done()
	defer func() {
		r.qrMu.Lock()
		delete(r.qrTasks, userID)
		r.qrMu.Unlock()
	}()

	for i := 0; i < qrPollAttempts; i++ {
		select {
		case <-ctx.Done():
			r.notifyActive(origin, "扫码绑定任务已取消。")
			return
		case <-time.After(time.Second):
		}

		result, err := r.manager.QRCheck(ctx, code)
		if err != nil {
			logger.Warnw("扫码绑定轮询异常", "userId", userID, "error", err)
			r.notifyActive(origin, fmt.Sprintf("扫码绑定异常: %v", err))
			return
		}
		switch result.Status {
		case "Wait":
			continue
		case "OK":
			r.finishQRBind(ctx, userID, origin, result.Code, result.Uin, result.Avatar)
			return
		case "Used":
			r.notifyActive(origin, "二维码已失效，请重新发起 `qfarm 账号 绑定扫码`。")
			return
		default:
			message := result.Error
			if message == "" {
				message = "未知错误"
			}
			r.notifyActive(origin, "扫码登录失败: "+message)
			return
		}
	}
	r.notifyActive(origin, "扫码登录超时（120秒）。")
}

func (r *Router) finishQRBind(ctx context.Context, userID string, origin any, authCode, uin, avatar string) {
	if authCode == "" {
		r.notifyActive(origin, "扫码成功但未获取到授权 code，请重试。")
		return
	}
	name := uin
	if name == "" {
		name = "用户" + userID
	}
	view, err := r.bindAccountWithCode(ctx, userID, authCode, name, &runtime.Account{
		Uin:    uin,
		QQ:     uin,
		Avatar: avatar,
	})
	if err != nil {
		r.notifyActive(origin, fmt.Sprintf("扫码绑定异常: %v", err))
		return
	}
	status, err := r.manager.AccountStatus(view.ID)
	if err != nil || status.RuntimeState != "running" {
		reason := ""
		if status != nil {
			reason = firstNonEmpty(status.LastStartError, status.RuntimeState)
		}
		r.notifyActive(origin, fmt.Sprintf("扫码绑定成功，但自动启动失败: %s\n可手动执行: qfarm 账号 启动", reason))
		return
	}
	r.notifyActive(origin, fmt.Sprintf("扫码绑定并启动成功: 账号ID=%s 名称=%s", view.ID, orDash(view.Name)))
}

// bindAccountWithCode saves the login code under the user's bound
// account, creating one on first bind, and refreshes the binding.
func (r *Router) bindAccountWithCode(ctx context.Context, userID, code, name string, extra *runtime.Account) (*runtime.AccountView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "code 不能为空。")
	}

	existingID := r.store.BoundAccount(userID)
	if existingID != "" && r.manager.AccountByID(existingID) == nil {
		r.store.UnbindAccount(userID)
		existingID = ""
	}

	payload := runtime.Account{ID: existingID, Code: code, Name: strings.TrimSpace(name)}
	if existingID == "" && payload.Name == "" {
		payload.Name = "用户" + userID
	}
	if extra != nil {
		payload.Uin = extra.Uin
		payload.QQ = extra.QQ
		payload.Avatar = extra.Avatar
	}
	result, err := r.manager.UpsertAccount(ctx, payload)
	if err != nil {
		return nil, err
	}
	view := result.Account
	if err := r.store.BindAccount(userID, view.ID, view.Name); err != nil {
		return nil, err
	}
	return view, nil
}

func (r *Router) requireBoundAccount(userID string) (string, *runtime.AccountView, error) {
	accountID := r.store.BoundAccount(userID)
	if accountID == "" {
		return "", nil, errors.New("当前用户未绑定账号，请先执行 `qfarm 账号 绑定 code <code>`。")
	}
	view := r.manager.AccountByID(accountID)
	if view == nil {
		r.store.UnbindAccount(userID)
		return "", nil, errors.New("绑定账号不存在或已被删除，已自动解绑，请重新绑定。")
	}
	return accountID, view, nil
}

func (r *Router) checkAccess(userID, groupID string) (bool, string) {
	if r.isSuperAdmin(userID) {
		return true, ""
	}
	if !r.store.IsUserAllowed(userID) {
		return false, "权限不足：你不在用户白名单中。"
	}
	if groupID != "" && !r.store.IsGroupAllowed(groupID) {
		return false, "权限不足：当前群不在群白名单中。"
	}
	return true, ""
}

func (r *Router) notifyActive(origin any, text string) {
	if r.notify == nil || origin == nil {
		return
	}
	r.notify(origin, text)
}

func isSuperAdminCommand(top string) bool {
	switch top {
	case "服务", "service", "白名单", "whitelist", "调试", "debug":
		return true
	}
	return false
}

// isWriteCommand classifies a command for the rate limiter: write
// commands get the longer cooldown and the per-account write slot.
func isWriteCommand(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	cmd := token(tokens[0])
	args := make([]string, 0, len(tokens)-1)
	for _, item := range tokens[1:] {
		args = append(args, token(item))
	}
	switch cmd {
	case "服务", "service":
		return len(args) == 0 || (args[0] != "状态" && args[0] != "status")
	case "账号", "account":
		if len(args) == 0 {
			return false
		}
		return args[0] != "查看" && args[0] != "view"
	case "状态", "status", "种子", "seed", "seeds", "背包", "bag",
		"分析", "analytics", "analysis", "日志", "log", "logs",
		"账号日志", "accountlogs", "account-logs":
		return false
	case "农田", "farm", "好友", "friend":
		return len(args) >= 1 && (args[0] == "操作" || args[0] == "op" || args[0] == "operate")
	case "自动化", "automation", "auto", "设置", "setting", "settings",
		"主题", "theme", "白名单", "whitelist", "调试", "debug":
		return true
	}
	return false
}

// markRenderCandidates flags plain informational replies for image
// rendering; errors and usage hints stay text.
func markRenderCandidates(replies []*Reply) []*Reply {
	for _, reply := range replies {
		if reply.ImageURL != "" || reply.Text == "" {
			continue
		}
		if isNormalReplyText(reply.Text) {
			reply.PreferImage = true
		}
	}
	return replies
}

func isNormalReplyText(text string) bool {
	content := strings.TrimSpace(text)
	if content == "" {
		return false
	}
	badPrefixes := []string{"用法:", "权限不足", "操作失败:", "命令执行异常:", "未知", "无法识别"}
	for _, prefix := range badPrefixes {
		if strings.HasPrefix(content, prefix) {
			return false
		}
	}
	badKeywords := []string{"不能为空", "非法", "拒绝执行", "过于频繁", "失败"}
	for _, word := range badKeywords {
		if strings.Contains(content, word) {
			return false
		}
	}
	return true
}

// allAutomationPatch flips every boolean automation flag; the
// fertilizer mode is left alone.
func allAutomationPatch(value bool) *runtime.AutomationPatch {
	v := value
	return &runtime.AutomationPatch{
		Farm:        &v,
		FarmPush:    &v,
		LandUpgrade: &v,
		Friend:      &v,
		FriendSteal: &v,
		FriendHelp:  &v,
		FriendBad:   &v,
		Task:        &v,
		Sell:        &v,
	}
}

func automationPatch(key string, value *bool) *runtime.AutomationPatch {
	patch := &runtime.AutomationPatch{}
	switch key {
	case "farm":
		patch.Farm = value
	case "farm_push":
		patch.FarmPush = value
	case "land_upgrade":
		patch.LandUpgrade = value
	case "friend":
		patch.Friend = value
	case "friend_steal":
		patch.FriendSteal = value
	case "friend_help":
		patch.FriendHelp = value
	case "friend_bad":
		patch.FriendBad = value
	case "task":
		patch.Task = value
	case "sell":
		patch.Sell = value
	default:
		return nil
	}
	return patch
}

// parseKeyValueArgs extracts a leading numeric limit plus key=value
// options from the remaining tokens.
func parseKeyValueArgs(tokens []string) (int, map[string]string) {
	limit := 0
	options := map[string]string{}
	for _, raw := range tokens {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		if limit == 0 {
			if n, err := strconv.Atoi(text); err == nil && n > 0 {
				limit = n
				continue
			}
		}
		if idx := strings.Index(text, "="); idx > 0 {
			options[strings.TrimSpace(text[:idx])] = strings.TrimSpace(text[idx+1:])
		}
	}
	return limit, options
}

func parseBool(value string) *bool {
	yes := true
	no := false
	switch token(value) {
	case "1", "true", "on", "yes", "y", "开", "开启", "是":
		return &yes
	case "0", "false", "off", "no", "n", "关", "关闭", "否":
		return &no
	}
	return nil
}

func isValidTime(value string) bool {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return false
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return hh >= 0 && hh <= 23 && mm >= 0 && mm <= 59
}

// token lowercases plain ASCII tokens; Chinese tokens pass through.
func token(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return ""
	}
	if plainTokenRe.MatchString(text) {
		return strings.ToLower(text)
	}
	return text
}

func textReply(text string) []*Reply {
	return []*Reply{{Text: text}}
}

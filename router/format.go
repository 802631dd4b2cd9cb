package router

import (
	"fmt"
	"strings"

	"qq-farm-runtime/domain"
	"qq-farm-runtime/runtime"
)

// Display caps keep chat replies inside platform message limits.
const (
	maxLandRows   = 80
	maxFriendRows = 80
	maxSeedRows   = 60
	maxBagRows    = 80
	maxRankRows   = 60
)

const helpText = "qfarm 命令总览\n" +
	"1) qfarm 帮助\n" +
	"2) qfarm 服务 状态|启动|停止|重启 (超管)\n" +
	"3) qfarm 账号 查看\n" +
	"4) qfarm 账号 绑定 code <code> [备注名]\n" +
	"5) qfarm 账号 绑定扫码\n" +
	"6) qfarm 账号 取消扫码\n" +
	"7) qfarm 账号 解绑\n" +
	"8) qfarm 账号 启动\n" +
	"9) qfarm 账号 停止\n" +
	"10) qfarm 账号 重连 [code]\n" +
	"11) qfarm 状态\n" +
	"12) qfarm 农田 查看\n" +
	"13) qfarm 农田 操作 all|harvest|clear|plant|upgrade\n" +
	"14) qfarm 好友 列表\n" +
	"15) qfarm 好友 农田 <gid>\n" +
	"16) qfarm 好友 操作 <gid> steal|water|weed|bug|bad\n" +
	"17) qfarm 种子 列表\n" +
	"18) qfarm 背包 查看\n" +
	"19) qfarm 分析 [exp|fert|profit|fert_profit|level]\n" +
	"20) qfarm 自动化 查看\n" +
	"21) qfarm 自动化 设置 <key> <on|off>\n" +
	"22) qfarm 自动化 施肥 <both|normal|organic|none> / 全开 / 全关\n" +
	"23) qfarm 设置 策略 <preferred|level|max_exp|max_fert_exp|max_profit|max_fert_profit>\n" +
	"24) qfarm 设置 种子 <seedId>\n" +
	"25) qfarm 设置 间隔 农场 <minSec> <maxSec>\n" +
	"26) qfarm 设置 间隔 好友 <minSec> <maxSec>\n" +
	"27) qfarm 设置 静默 <on|off> <HH:MM> <HH:MM>\n" +
	"28) qfarm 主题 <dark|light>\n" +
	"29) qfarm 日志 [limit] [module=...] [event=...] [keyword=...] [isWarn=0|1]\n" +
	"30) qfarm 账号日志 [limit]\n" +
	"31) qfarm 调试 出售 (超管)\n" +
	"32) qfarm 白名单 用户 列表|添加|删除 <uid> (超管)\n" +
	"33) qfarm 白名单 群 列表|添加|删除 <gid> (超管)\n" +
	"\n同样支持中文别名命令: 农场 ..."

func formatServiceStatus(status *runtime.ServiceStatus) []string {
	lines := []string{
		"【服务状态】",
		"服务运行: " + yesNo(status.Running),
		fmt.Sprintf("运行账号数: %d", status.RuntimeCount),
		fmt.Sprintf("启动重试中: %d", status.RetryingCount),
		fmt.Sprintf("启动失败账号: %d", status.FailedCount),
	}
	if len(status.FailedAccounts) > 0 {
		lines = append(lines, "失败摘要:")
		for i, row := range status.FailedAccounts {
			if i >= 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("- 账号%s (重试%d): %s",
				orDash(row.AccountID), row.RetryCount, orDash(row.Error)))
		}
		if len(status.FailedAccounts) > 5 {
			lines = append(lines, fmt.Sprintf("... 共 %d 个失败账号", len(status.FailedAccounts)))
		}
	}
	return lines
}

func formatStatus(status *runtime.Status) []string {
	conn := "离线"
	if status.Connection.Connected {
		conn = "在线"
	}
	lines := []string{
		"【农场状态】",
		"连接: " + conn,
		"运行态: " + status.RuntimeState,
		fmt.Sprintf("启动重试次数: %d", status.StartRetryCount),
		"昵称: " + orDash(status.Profile.Name),
		fmt.Sprintf("等级: Lv%d", status.Profile.Level),
		fmt.Sprintf("金币: %d", status.Profile.Gold),
		fmt.Sprintf("经验: %d", status.Profile.Exp),
		fmt.Sprintf("点券: %d", status.Profile.Coupon),
		fmt.Sprintf("会话收益: 经验 %d / 金币 %d / 点券 %d",
			status.SessionExpGained, status.SessionGoldGained, status.SessionCouponGained),
		fmt.Sprintf("下次农田: %ds", status.NextChecks.FarmRemainSec),
		fmt.Sprintf("下次好友巡查: %ds", status.NextChecks.FriendRemainSec),
		fmt.Sprintf("经验进度: %d/%d", status.ExpProgress.Current, status.ExpProgress.Needed),
	}
	if status.LastStartError != "" {
		lines = append(lines, "最近启动错误: "+status.LastStartError)
	}

	ops := status.Operations
	parts := []string{
		fmt.Sprintf("harvest:%d", ops.Harvest),
		fmt.Sprintf("water:%d", ops.Water),
		fmt.Sprintf("weed:%d", ops.Weed),
		fmt.Sprintf("bug:%d", ops.Bug),
		fmt.Sprintf("plant:%d", ops.Plant),
		fmt.Sprintf("steal:%d", ops.Steal),
		fmt.Sprintf("helpWater:%d", ops.HelpWater),
		fmt.Sprintf("helpWeed:%d", ops.HelpWeed),
		fmt.Sprintf("helpBug:%d", ops.HelpBug),
		fmt.Sprintf("taskClaim:%d", ops.TaskClaim),
		fmt.Sprintf("sell:%d", ops.Sell),
		fmt.Sprintf("upgrade:%d", ops.Upgrade),
	}
	lines = append(lines, "操作计数: "+strings.Join(parts, " "))
	return lines
}

func formatLands(view *domain.LandsView) []string {
	summary := view.Summary
	lines := []string{
		"【农田详情】",
		fmt.Sprintf("收获:%d 长成:%d 空地:%d 枯萎:%d 水:%d 草:%d 虫:%d",
			summary.Harvestable, summary.Growing, summary.Empty,
			summary.Dead, summary.NeedWater, summary.NeedWeed, summary.NeedBug),
	}
	if len(view.Lands) == 0 {
		lines = append(lines, "暂无土地数据。")
		return lines
	}
	for i, land := range view.Lands {
		if i >= maxLandRows {
			break
		}
		matureText := ""
		if land.MatureInSec > 0 {
			matureText = fmt.Sprintf(" 成熟剩余:%ds", land.MatureInSec)
		}
		lines = append(lines, fmt.Sprintf("- #%d [%s] Lv%d %s / %s%s%s",
			land.ID, orDash(land.Status), land.Level,
			orDash(land.PlantName), orDash(land.PhaseName),
			needsText(land.NeedWater, land.NeedWeed, land.NeedBug), matureText))
	}
	if len(view.Lands) > maxLandRows {
		lines = append(lines, fmt.Sprintf("... 共 %d 块，仅展示前 %d 块。", len(view.Lands), maxLandRows))
	}
	return lines
}

func formatFriends(friends []*domain.FriendBrief) []string {
	lines := []string{fmt.Sprintf("【好友列表】总数: %d", len(friends))}
	if len(friends) == 0 {
		lines = append(lines, "暂无好友或接口无数据。")
		return lines
	}
	for i, friend := range friends {
		if i >= maxFriendRows {
			break
		}
		name := friend.Name
		if name == "" {
			name = fmt.Sprintf("GID:%d", friend.Gid)
		}
		lines = append(lines, fmt.Sprintf("- %s (%d) => 偷%d 水%d 草%d 虫%d",
			name, friend.Gid,
			friend.Plant.StealNum, friend.Plant.DryNum,
			friend.Plant.WeedNum, friend.Plant.InsectNum))
	}
	if len(friends) > maxFriendRows {
		lines = append(lines, fmt.Sprintf("... 共 %d 人，仅展示前 %d 人。", len(friends), maxFriendRows))
	}
	return lines
}

func formatFriendLands(gid int64, view *domain.LandsView, buckets *domain.FriendLandBuckets) []string {
	lines := []string{
		fmt.Sprintf("【好友农田】gid=%d", gid),
		fmt.Sprintf("可偷:%d 可浇水:%d 可除草:%d 可除虫:%d",
			len(buckets.Stealable), len(buckets.NeedWater),
			len(buckets.NeedWeed), len(buckets.NeedBug)),
	}
	if view == nil || len(view.Lands) == 0 {
		lines = append(lines, "无土地明细。")
		return lines
	}
	for i, land := range view.Lands {
		if i >= maxLandRows {
			break
		}
		lines = append(lines, fmt.Sprintf("- #%d [%s] %s / %s%s",
			land.ID, orDash(land.Status), orDash(land.PlantName), orDash(land.PhaseName),
			needsText(land.NeedWater, land.NeedWeed, land.NeedBug)))
	}
	if len(view.Lands) > maxLandRows {
		lines = append(lines, fmt.Sprintf("... 共 %d 块，仅展示前 %d 块。", len(view.Lands), maxLandRows))
	}
	return lines
}

func formatSeeds(seeds []*domain.SeedOption) []string {
	lines := []string{"【种子列表】"}
	if len(seeds) == 0 {
		lines = append(lines, "无数据。")
		return lines
	}
	for i, seed := range seeds {
		if i >= maxSeedRows {
			break
		}
		name := seed.Name
		if name == "" {
			name = fmt.Sprintf("种子%d", seed.SeedID)
		}
		marks := []string{}
		if seed.Locked {
			marks = append(marks, "未解锁")
		}
		if seed.SoldOut {
			marks = append(marks, "售罄")
		}
		markText := ""
		if len(marks) > 0 {
			markText = " [" + strings.Join(marks, "|") + "]"
		}
		lines = append(lines, fmt.Sprintf("- %d: %s Lv%d 价格%d%s",
			seed.SeedID, name, seed.RequiredLevel, seed.Price, markText))
	}
	if len(seeds) > maxSeedRows {
		lines = append(lines, fmt.Sprintf("... 共 %d 条，仅展示前 %d 条。", len(seeds), maxSeedRows))
	}
	return lines
}

func formatBag(bag *domain.BagDetail) []string {
	lines := []string{fmt.Sprintf("【背包】种类数: %d", bag.TotalKinds)}
	if len(bag.Items) == 0 {
		lines = append(lines, "暂无物品。")
		return lines
	}
	for i, item := range bag.Items {
		if i >= maxBagRows {
			break
		}
		name := item.Name
		if name == "" {
			name = fmt.Sprintf("物品%d", item.ID)
		}
		category := item.Category
		if category == "" {
			category = "item"
		}
		detail := ""
		if item.HoursText != "" {
			detail = " (" + item.HoursText + ")"
		}
		lines = append(lines, fmt.Sprintf("- %d: %s x%d [%s]%s",
			item.ID, name, item.Count, category, detail))
	}
	if len(bag.Items) > maxBagRows {
		lines = append(lines, fmt.Sprintf("... 共 %d 条，仅展示前 %d 条。", len(bag.Items), maxBagRows))
	}
	return lines
}

func formatRankings(sortBy string, rows []*domain.PlantRanking) []string {
	lines := []string{"【作物分析】排序: " + sortBy}
	if len(rows) == 0 {
		lines = append(lines, "暂无数据。")
		return lines
	}
	for i, row := range rows {
		if i >= maxRankRows {
			break
		}
		name := row.Name
		if name == "" {
			name = fmt.Sprintf("seed-%d", row.SeedID)
		}
		lines = append(lines, fmt.Sprintf("- %s(%d) => %s", name, row.SeedID, rankingMetric(sortBy, row)))
	}
	if len(rows) > maxRankRows {
		lines = append(lines, fmt.Sprintf("... 共 %d 条，仅展示前 %d 条。", len(rows), maxRankRows))
	}
	return lines
}

func rankingMetric(sortBy string, row *domain.PlantRanking) string {
	switch sortBy {
	case "fert":
		return fmt.Sprintf("normalFertilizerExpPerHour=%.2f", row.NormalFertilizerExpPerHour)
	case "profit":
		return fmt.Sprintf("profitPerHour=%.2f", row.ProfitPerHour)
	case "fert_profit":
		return fmt.Sprintf("normalFertilizerProfitPerHour=%.2f", row.NormalFertilizerProfitPerHour)
	case "level":
		return fmt.Sprintf("requiredLevel=%d", row.Level)
	default:
		return fmt.Sprintf("expPerHour=%.2f", row.ExpPerHour)
	}
}

func formatAutomation(auto runtime.Automation) []string {
	return []string{
		"【自动化配置】",
		fmt.Sprintf("- farm: %v", auto.Farm),
		fmt.Sprintf("- farm_push: %v", auto.FarmPush),
		fmt.Sprintf("- fertilizer: %s", auto.Fertilizer),
		fmt.Sprintf("- friend: %v", auto.Friend),
		fmt.Sprintf("- friend_bad: %v", auto.FriendBad),
		fmt.Sprintf("- friend_help: %v", auto.FriendHelp),
		fmt.Sprintf("- friend_steal: %v", auto.FriendSteal),
		fmt.Sprintf("- land_upgrade: %v", auto.LandUpgrade),
		fmt.Sprintf("- sell: %v", auto.Sell),
		fmt.Sprintf("- task: %v", auto.Task),
	}
}

func needsText(water, weed, bug bool) string {
	needs := []string{}
	if water {
		needs = append(needs, "水")
	}
	if weed {
		needs = append(needs, "草")
	}
	if bug {
		needs = append(needs, "虫")
	}
	if len(needs) == 0 {
		return ""
	}
	return " 需:" + strings.Join(needs, "/")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func yesNo(ok bool) string {
	if ok {
		return "是"
	}
	return "否"
}

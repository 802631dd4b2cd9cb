package domain

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"qq-farm-runtime/logger"
)

// inviteDelay spaces successive ark-click reports.
const inviteDelay = 2 * time.Second

// ShareLink is one parsed share-link row.
type ShareLink struct {
	UID         string `json:"uid"`
	OpenID      string `json:"openid"`
	ShareSource string `json:"share_source"`
	DocID       string `json:"doc_id"`
}

// InviteResult summarizes one invite processing pass.
type InviteResult struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
	Total   int    `json:"total"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
}

// InviteService replays collected share links against the sharer's
// account. Only the WeChat platform supports share rewards.
type InviteService struct {
	user     *UserService
	platform string
	filePath string
}

func NewInviteService(user *UserService, platform, shareFilePath string) *InviteService {
	return &InviteService{
		user:     user,
		platform: strings.ToLower(strings.TrimSpace(platform)),
		filePath: shareFilePath,
	}
}

// ParseShareLink extracts the sharer fields from a share-link query
// string. A leading "?" is tolerated.
func ParseShareLink(link string) ShareLink {
	text := strings.TrimSpace(link)
	text = strings.TrimPrefix(text, "?")
	if text == "" {
		return ShareLink{}
	}
	query, err := url.ParseQuery(text)
	if err != nil {
		return ShareLink{}
	}
	return ShareLink{
		UID:         query.Get("uid"),
		OpenID:      query.Get("openid"),
		ShareSource: query.Get("share_source"),
		DocID:       query.Get("doc_id"),
	}
}

// ReadShareFile parses the collected link file, deduplicating by uid.
// Lines without an openid are skipped.
func (s *InviteService) ReadShareFile() []ShareLink {
	if s.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnw("read share file failed", "error", err)
		}
		return nil
	}

	var rows []ShareLink
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		raw := strings.TrimSpace(line)
		if raw == "" || !strings.Contains(raw, "openid=") {
			continue
		}
		parsed := ParseShareLink(raw)
		if parsed.UID == "" || parsed.OpenID == "" || seen[parsed.UID] {
			continue
		}
		seen[parsed.UID] = true
		rows = append(rows, parsed)
	}
	return rows
}

// ClearShareFile truncates the link file once processed.
func (s *InviteService) ClearShareFile() {
	if s.filePath == "" {
		return
	}
	_ = os.WriteFile(s.filePath, nil, 0o644)
}

// ProcessInvites reports every collected share click with 2s spacing,
// then clears the file. Non-WeChat platforms skip the whole pass.
func (s *InviteService) ProcessInvites(ctx context.Context) (*InviteResult, error) {
	if s.platform != "wx" {
		logger.Debugw("skip invite process for non-wx platform", "platform", s.platform)
		return &InviteResult{Skipped: true, Reason: "platform_not_wx"}, nil
	}
	rows := s.ReadShareFile()
	if len(rows) == 0 {
		return &InviteResult{Skipped: true, Reason: "empty"}, nil
	}

	result := &InviteResult{Total: len(rows)}
	for idx, row := range rows {
		uid, _ := strconv.ParseInt(row.UID, 10, 64)
		shareSource, _ := strconv.ParseInt(row.ShareSource, 10, 64)
		_, err := s.user.ReportArkClick(ctx, uid, row.OpenID, shareSource, "1256")
		if err != nil {
			result.Failed++
			logger.Warnw("invite report failed", "uid", uid, "error", err)
		} else {
			result.Success++
			logger.Infow("invite report ok", "uid", uid, "index", idx+1, "total", len(rows))
		}
		if idx < len(rows)-1 {
			if !sleepCtx(ctx, inviteDelay) {
				return result, ctx.Err()
			}
		}
	}

	s.ClearShareFile()
	logger.Infow("invite process done", "success", result.Success, "failed", result.Failed)
	return result, nil
}

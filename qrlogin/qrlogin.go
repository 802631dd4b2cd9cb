// Package qrlogin drives the QQ mini-program scan-login flow used to
// obtain a gate login code without copying it by hand.
package qrlogin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"qq-farm-runtime/errors"
)

const (
	defaultAppID = "1112386029"
	defaultQUA   = "V1_HT5_QDT_0.70.2209190_x64_0_DEV_D"

	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	loginCodeURL  = "https://q.qq.com/ide/devtoolAuth/GetLoginCode"
	scanStateURL  = "https://q.qq.com/ide/devtoolAuth/syncScanSateGetTicket"
	ideLoginURL   = "https://q.qq.com/ide/login"
	qrImageAPIURL = "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data="
)

// Scan states reported by Check.
const (
	StatusOK    = "OK"
	StatusWait  = "Wait"
	StatusUsed  = "Used"
	StatusError = "Error"
)

// Ticket is one created scan-login session.
type Ticket struct {
	Code   string `json:"code"`
	URL    string `json:"url"`
	QRCode string `json:"qrcode"`
}

// CheckResult is the poll outcome. Code is only set on StatusOK; it is
// a login credential and must not be logged.
type CheckResult struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Uin    string `json:"uin,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Config carries the IDE auth identity.
type Config struct {
	AppID   string
	QUA     string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.AppID == "" {
		c.AppID = defaultAppID
	}
	if c.QUA == "" {
		c.QUA = defaultQUA
	}
	if c.Timeout < 5*time.Second {
		c.Timeout = 15 * time.Second
	}
	return c
}

// Client talks to the q.qq.com IDE auth endpoints.
type Client struct {
	cfg  Config
	http *http.Client

	loginCodeURL string
	scanStateURL string
	ideLoginURL  string
}

func NewClient() *Client {
	return NewClientWithConfig(Config{})
}

func NewClientWithConfig(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:          cfg,
		http:         &http.Client{Timeout: cfg.Timeout},
		loginCodeURL: loginCodeURL,
		scanStateURL: scanStateURL,
		ideLoginURL:  ideLoginURL,
	}
}

// Create requests a fresh login code and returns the scan URL plus a
// rendered QR image URL.
func (c *Client) Create(ctx context.Context) (*Ticket, error) {
	var reply struct {
		Code int `json:"code"`
		Data struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.loginCodeURL, &reply); err != nil {
		return nil, err
	}
	if reply.Code != 0 {
		return nil, errors.New("获取登录码失败")
	}
	if reply.Data.Code == "" {
		return nil, errors.New("登录码为空")
	}
	loginURL := fmt.Sprintf("https://h5.qzone.qq.com/qqq/code/%s?_proxy=1&from=ide", reply.Data.Code)
	return &Ticket{
		Code:   reply.Data.Code,
		URL:    loginURL,
		QRCode: qrImageAPIURL + url.QueryEscape(loginURL),
	}, nil
}

// Check polls the scan state and, once scanned, trades the ticket for
// the gate login code.
func (c *Client) Check(ctx context.Context, code string) (*CheckResult, error) {
	if code == "" {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "code 不能为空")
	}
	status, err := c.queryStatus(ctx, code)
	if err != nil {
		return nil, err
	}
	if status.Status != StatusOK {
		return &status.CheckResult, nil
	}
	authCode, err := c.authCode(ctx, status.ticket)
	if err != nil {
		return &CheckResult{Status: StatusError, Error: err.Error()}, nil
	}
	result := &CheckResult{Status: StatusOK, Code: authCode, Uin: status.Uin}
	if status.Uin != "" {
		result.Avatar = fmt.Sprintf("https://q1.qlogo.cn/g?b=qq&nk=%s&s=640", status.Uin)
	}
	return result, nil
}

type scanState struct {
	CheckResult
	ticket string
}

func (c *Client) queryStatus(ctx context.Context, code string) (*scanState, error) {
	var reply struct {
		Code int `json:"code"`
		Data struct {
			OK     int    `json:"ok"`
			Ticket string `json:"ticket"`
			Uin    string `json:"uin"`
		} `json:"data"`
	}
	endpoint := c.scanStateURL + "?code=" + url.QueryEscape(code)
	if err := c.getJSON(ctx, endpoint, &reply); err != nil {
		return &scanState{CheckResult: CheckResult{Status: StatusError, Error: err.Error()}}, nil
	}
	switch {
	case reply.Code == 0 && reply.Data.OK == 1:
		return &scanState{
			CheckResult: CheckResult{Status: StatusOK, Uin: reply.Data.Uin},
			ticket:      reply.Data.Ticket,
		}, nil
	case reply.Code == 0:
		return &scanState{CheckResult: CheckResult{Status: StatusWait}}, nil
	case reply.Code == -10003:
		return &scanState{CheckResult: CheckResult{Status: StatusUsed}}, nil
	default:
		return &scanState{CheckResult: CheckResult{Status: StatusError, Error: fmt.Sprintf("Code: %d", reply.Code)}}, nil
	}
}

func (c *Client) authCode(ctx context.Context, ticket string) (string, error) {
	if ticket == "" {
		return "", nil
	}
	payload, err := json.Marshal(map[string]string{
		"appid":  c.cfg.AppID,
		"ticket": ticket,
	})
	if err != nil {
		return "", errors.WithStack(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ideLoginURL, bytes.NewReader(payload))
	if err != nil {
		return "", errors.WithStack(err)
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "扫码接口请求失败")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	var reply struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(resp.Body, &reply); err != nil {
		return "", err
	}
	return reply.Code, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "扫码接口请求失败")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("HTTP %d", resp.StatusCode)
	}
	return decodeJSON(resp.Body, v)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("qua", c.cfg.QUA)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", chromeUA)
}

func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrap(err, "扫码接口返回异常")
	}
	return nil
}

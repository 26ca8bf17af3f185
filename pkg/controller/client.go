// Package controller talks to a UniFi-style network controller. It detects
// which of the two API dialects the controller speaks, keeps the session
// alive, and exposes the inventory and WAN topology reads the monitor needs.
package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config describes how to reach and log in to the controller.
type Config struct {
	BaseURL     string        `yaml:"url"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Site        string        `yaml:"site"`
	LegacyPort  int           `yaml:"legacyPort"`
	InsecureTLS bool          `yaml:"insecureTLS"`
	Timeout     time.Duration `yaml:"timeout"`
	PageSize    int           `yaml:"pageSize"`
}

// Client owns one controller session. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	session *Session
	dialect Dialect // last dialect that logged in; tried first on re-auth
}

func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Site == "" {
		cfg.Site = "default"
	}
	if cfg.LegacyPort == 0 {
		cfg.LegacyPort = 8443
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureTLS}, //nolint:gosec
			},
		},
		log: log.Named("controller"),
		now: time.Now,
	}
}

func (c *Client) Site() string { return c.cfg.Site }

func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Dialect returns the established dialect, or "" before the first login.
func (c *Client) Dialect() Dialect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialect
}

// Authenticate logs in, trying the unified console dialect first and the
// legacy controller port second. A dialect that worked before is tried first.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (*Session, error) {
	order := []Dialect{DialectUniFiOS, DialectLegacy}
	if c.dialect == DialectLegacy {
		order = []Dialect{DialectLegacy, DialectUniFiOS}
	}
	authErr := &AuthError{}
	for _, d := range order {
		s, err := c.login(ctx, d)
		if err == nil {
			if c.dialect != d {
				c.log.Info("controller dialect established", zap.String("dialect", string(d)), zap.String("base", s.BaseURL))
			}
			c.session = s
			c.dialect = d
			return s, nil
		}
		c.log.Debug("login attempt failed", zap.String("dialect", string(d)), zap.Error(err))
		if d == DialectUniFiOS {
			authErr.UniFiOS = err
		} else {
			authErr.Legacy = err
		}
	}
	c.session = nil
	return nil, authErr
}

func (c *Client) login(ctx context.Context, d Dialect) (*Session, error) {
	base := c.cfg.BaseURL
	path := "/api/auth/login"
	if d == DialectLegacy {
		var err error
		if base, err = c.legacyBase(); err != nil {
			return nil, err
		}
		path = "/api/login"
	}
	body, _ := json.Marshal(map[string]any{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
		"remember": true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("login returned %s body=%s", resp.Status, truncate(b))
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil, fmt.Errorf("login returned no session cookie")
	}
	s := &Session{Dialect: d, BaseURL: base, Cookies: cookies}
	if d == DialectUniFiOS {
		s.CSRFToken = resp.Header.Get("X-CSRF-Token")
		for _, ck := range cookies {
			if ck.Name != "TOKEN" {
				continue
			}
			exp, csrf := inspectToken(ck.Value)
			s.ExpiresAt = exp
			if s.CSRFToken == "" {
				s.CSRFToken = csrf
			}
		}
	}
	return s, nil
}

// legacyBase is the same host on the standalone controller port.
func (c *Client) legacyBase() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.cfg.LegacyPort))
	u.Path = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// currentSession returns a usable session, logging in when there is none or
// the token is known to have expired.
func (c *Client) currentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && !c.session.expired(c.now()) {
		return c.session, nil
	}
	return c.authenticateLocked(ctx)
}

// invalidate drops s unless another caller already replaced it.
func (c *Client) invalidate(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.session = nil
	}
}

// Request performs an authenticated call relative to the dialect's network
// API root. An authorization failure triggers one re-login and one retry.
func (c *Client) Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	s, err := c.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.do(ctx, s, method, path, body)
	if err == nil || !isExpired(err) {
		return data, err
	}
	c.log.Info("session rejected; re-authenticating", zap.String("path", path))
	c.invalidate(s)
	if s, err = c.currentSession(ctx); err != nil {
		return nil, err
	}
	return c.do(ctx, s, method, path, body)
}

func (c *Client) do(ctx context.Context, s *Session, method, path string, body any) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+s.Dialect.apiPrefix()+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	s.apply(req)
	c.mu.Unlock()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if tok := resp.Header.Get("X-Updated-CSRF-Token"); tok != "" {
		c.mu.Lock()
		s.CSRFToken = tok
		c.mu.Unlock()
	}
	if authRejected(resp.StatusCode, data) {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrSessionExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(data)}
	}
	return data, nil
}

func authRejected(status int, body []byte) bool {
	switch status {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		trimmed := bytes.TrimSpace(body)
		return len(trimmed) == 0 || bytes.Contains(trimmed, []byte("LoginRequired"))
	}
	return false
}

func isExpired(err error) bool {
	return Kind(err) == "session"
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}

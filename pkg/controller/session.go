package controller

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Dialect identifies which controller API flavor a session speaks.
type Dialect string

const (
	// DialectUniFiOS is the unified console API served on the base address.
	DialectUniFiOS Dialect = "unifi-os"
	// DialectLegacy is the standalone network controller on its own port.
	DialectLegacy Dialect = "legacy"
)

// apiPrefix is where the network application is rooted for each dialect.
func (d Dialect) apiPrefix() string {
	if d == DialectUniFiOS {
		return "/proxy/network"
	}
	return ""
}

// Session is the authentication artifact for one dialect and base address.
type Session struct {
	Dialect   Dialect
	BaseURL   string
	Cookies   []*http.Cookie
	CSRFToken string
	ExpiresAt time.Time
}

// expired reports whether the session token is known to be past its expiry.
// Sessions without a parseable expiry are trusted until the server says otherwise.
func (s *Session) expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(10 * time.Second).Before(s.ExpiresAt)
}

func (s *Session) apply(req *http.Request) {
	for _, c := range s.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	if s.CSRFToken != "" {
		req.Header.Set("X-CSRF-Token", s.CSRFToken)
	}
}

// inspectToken reads expiry and csrf claims from a console TOKEN cookie. The
// signature cannot be verified client side and is not needed for scheduling.
func inspectToken(raw string) (time.Time, string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, ""
	}
	var exp time.Time
	if e, err := claims.GetExpirationTime(); err == nil && e != nil {
		exp = e.Time
	}
	csrf, _ := claims["csrfToken"].(string)
	return exp, csrf
}

package security

import (
	"net/http"
	"time"
)

// RefreshCookieName carries the session's refresh token between requests.
const RefreshCookieName = "refresh_token"

// CookiePolicy holds the transport security flags applied to auth cookies.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	Path     string
}

func (p CookiePolicy) path() string {
	if p.Path == "" {
		return "/"
	}
	return p.Path
}

// SetRefreshCookie binds the refresh token to the caller as an HttpOnly
// cookie with the configured flags.
func SetRefreshCookie(w http.ResponseWriter, value string, ttl time.Duration, policy CookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     policy.path(),
		Domain:   policy.Domain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   policy.Secure,
		HttpOnly: true,
		SameSite: policy.SameSite,
	})
}

// ClearRefreshCookie expires the refresh cookie on logout.
func ClearRefreshCookie(w http.ResponseWriter, policy CookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     policy.path(),
		Domain:   policy.Domain,
		MaxAge:   -1,
		Secure:   policy.Secure,
		HttpOnly: true,
		SameSite: policy.SameSite,
	})
}

// GetCookie returns the named cookie value or "".
func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

package authkit

import (
	"errors"
	"net/http"
	"time"
)

// ServerConfig holds the Google audience, session signing, and cookie settings of the login flow.
type ServerConfig struct {
	GoogleWebClientID string
	AppJWTSigningKey  []byte
	AppJWTIssuer      string
	CookieDomain      string
	SessionCookieName string
	RefreshCookieName string
	SessionTTL        time.Duration
	RefreshTTL        time.Duration
	SameSiteMode      http.SameSite
	// AllowInsecureHTTP permits plain-HTTP logins and non-Secure cookies for local development.
	AllowInsecureHTTP bool
}

func (configuration ServerConfig) validate() error {
	switch {
	case configuration.GoogleWebClientID == "":
		return errors.New("authkit.config: google web client id must be provided")
	case len(configuration.AppJWTSigningKey) == 0:
		return errors.New("authkit.config: signing key must be provided")
	case configuration.SessionCookieName == "" || configuration.RefreshCookieName == "":
		return errors.New("authkit.config: cookie names must be provided")
	case configuration.SessionTTL <= 0 || configuration.RefreshTTL <= 0:
		return errors.New("authkit.config: session and refresh TTLs must be positive")
	}
	return nil
}

package core

import (
	"crypto/rand"
	"encoding/base64"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const sessionName = "expense_session"
const sessionMaxAge = 7 * 24 * 3600 // a week; the slots outlive browser restarts like localStorage

const (
	ctxCookie       = "cookie_session"
	ctxSessionStore = "session_store"
	browserIDKey    = "browser_id"
)

// SessionMiddleware loads the browser's cookie and builds the SessionStore for
// this request from the configured slot backend. Every cookie carries a browser
// id; it scopes in-flight auth calls and, with the redis backend, namespaces
// the slots.
func SessionMiddleware(cfg Config, store *sessions.CookieStore, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil {
			// A cookie signed with an old key decodes to a fresh session.
			log.Printf("session cookie rejected, starting anonymous: %v", err)
		}
		if session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}
		applySessionOptions(cfg, session)

		save := session.IsNew
		bid, _ := session.Values[browserIDKey].(string)
		if bid == "" {
			bid = uuid.NewString()
			session.Values[browserIDKey] = bid
			save = true
		}

		var slots SlotStore
		if cfg.MirrorBackend == MirrorRedis && rdb != nil {
			slots = NewRedisSlots(rdb, bid)
		} else {
			slots = NewCookieSlots(session, c.Request, c.Writer)
		}

		if save {
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}

		c.Request = c.Request.WithContext(WithFormScope(c.Request.Context(), bid))
		c.Set(ctxCookie, session)
		c.Set(ctxSessionStore, NewSessionStore(c.Request.Context(), slots))
		c.Next()
	}
}

// sessionStoreFrom returns the store SessionMiddleware attached to c.
func sessionStoreFrom(c *gin.Context) *SessionStore {
	v, ok := c.Get(ctxSessionStore)
	if !ok {
		return NewSessionStore(c.Request.Context(), nil)
	}
	s, _ := v.(*SessionStore)
	if s == nil {
		return NewSessionStore(c.Request.Context(), nil)
	}
	return s
}

// RequireSession runs CanEnter on the live session of every request. Views are
// redirected to the login page; API calls get 401 with the redirect target.
func RequireSession(view bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := CanEnter(sessionStoreFrom(c).Current())
		if d.Allowed {
			c.Next()
			return
		}
		if view {
			c.Redirect(http.StatusFound, d.Redirect)
			c.Abort()
			return
		}
		respondErrorRedirect(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required", d.Redirect)
		c.Abort()
	}
}

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
}

// CSRFMiddleware issues and validates a per-browser CSRF token.
func CSRFMiddleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionAny, _ := c.Get(ctxCookie)
		session, _ := sessionAny.(*sessions.Session)
		if session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		token, _ := session.Values["csrf_token"].(string)
		if token == "" {
			var err error
			token, err = generateCSRFToken()
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values["csrf_token"] = token
			applySessionOptions(cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) {
			header := c.GetHeader("X-CSRF-Token")
			if header == "" || header != token {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		c.Writer.Header().Set("X-CSRF-Token", token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Signup and login are reachable before the browser has read a token.
func csrfExemptPath(path string) bool {
	switch path {
	case "/api/v1/auth/login", "/api/v1/auth/register":
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"securesend/internal/service"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const principalContextKey = contextKey("principal")

const tokenCookieName = "token"

// tokenFromRequest reads the session token from the cookie, falling back to
// a Bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(tokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	headerParts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(headerParts) == 2 && headerParts[0] == "Bearer" {
		return headerParts[1]
	}
	return ""
}

func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.auth.Authenticate(r.Context(), tokenFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetPrincipalFromContext(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(principalContextKey).(*service.Principal); ok {
		return p
	}
	return nil
}

// optionalPrincipal resolves the caller if a valid token is present.
func (s *Server) optionalPrincipal(r *http.Request) *service.Principal {
	token := tokenFromRequest(r)
	if token == "" {
		return nil
	}
	p, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		return nil
	}
	return p
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
}

// RateLimitMiddleware applies the auth window per client IP. A failing
// limiter lets the request through.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.config.RateLimit.AuthLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		res, err := s.limiter.Allow(r.Context(), "auth:"+ip, s.config.RateLimit.AuthLimit, s.config.RateLimit.AuthWindow, s.now())
		if err != nil {
			log.WithError(err).WithField("ip", ip).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("RateLimit-Limit", strconv.Itoa(s.config.RateLimit.AuthLimit))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
		if !res.Allowed {
			rateLimitedTotal.Inc()
			writeError(w, service.ErrRateExceeded)
			return
		}
		next.ServeHTTP(w, r)
	})
}

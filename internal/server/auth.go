package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/auth"
)

const (
	adminTokenHeader   = "X-Admin-Token"
	adminPathPrefix    = "/v1/admin/"
	articlesPathPrefix = "/v1/articles"
	localPrincipal     = "local"
)

// withAuth attaches the request principal. Admin routes need the admin token
// or operator basic credentials once either is provisioned; mutating article
// routes need the API bearer token when one is configured.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, adminPathPrefix):
			principal, err := s.authenticateAdmin(r)
			if err != nil {
				s.writeErrorReq(w, r, httpStatusFromError(err), err)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithAuthPrincipal(r.Context(), principal)))
		case strings.HasPrefix(r.URL.Path, articlesPathPrefix) && isMutatingMethod(r.Method):
			principal, err := s.authenticateAPI(r)
			if err != nil {
				s.writeErrorReq(w, r, httpStatusFromError(err), err)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithAuthPrincipal(r.Context(), principal)))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) authenticateAPI(r *http.Request) (authPrincipal, error) {
	if s.apiToken == "" {
		return authPrincipal{AuthType: authTypeAPIToken, Name: localPrincipal}, nil
	}
	token, ok := bearerToken(r)
	if !ok {
		return authPrincipal{}, unauthorized(fmt.Errorf("bearer token required"))
	}
	if !auth.TokensEqual(s.apiToken, token) {
		return authPrincipal{}, forbidden(fmt.Errorf("invalid api token"))
	}
	return authPrincipal{AuthType: authTypeAPIToken, Name: "api-token"}, nil
}

func (s *Server) authenticateAdmin(r *http.Request) (authPrincipal, error) {
	if token := strings.TrimSpace(r.Header.Get(adminTokenHeader)); token != "" {
		if !auth.TokensEqual(s.adminToken, token) {
			return authPrincipal{}, forbidden(fmt.Errorf("invalid admin token"))
		}
		return authPrincipal{AuthType: authTypeAdminToken, Name: adminTokenPrincipal}, nil
	}

	if username, password, ok := r.BasicAuth(); ok {
		return s.authenticateOperator(r, username, password)
	}

	required, err := s.adminAuthRequired(r.Context())
	if err != nil {
		return authPrincipal{}, storeFailure(err)
	}
	if required {
		return authPrincipal{}, unauthorized(fmt.Errorf("admin credentials required"))
	}
	return authPrincipal{AuthType: authTypeAdminToken, Name: localPrincipal}, nil
}

func (s *Server) authenticateOperator(r *http.Request, username, password string) (authPrincipal, error) {
	if s.deps.Operators == nil {
		return authPrincipal{}, forbidden(fmt.Errorf("operator login is not configured"))
	}

	now := time.Now().UTC()
	lockoutKey := operatorLockoutKey(username, r)
	if s.lockout.Locked(lockoutKey, now) {
		return authPrincipal{}, apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("operator temporarily locked out; retry later"),
		}
	}

	name, err := auth.NormalizeUsername(username)
	if err != nil {
		auth.VerifyPassword("", password)
		s.lockout.Fail(lockoutKey, now)
		return authPrincipal{}, forbidden(fmt.Errorf("invalid operator credentials"))
	}
	operator, err := s.deps.Operators.GetOperatorByUsername(r.Context(), name)
	if err != nil {
		return authPrincipal{}, storeFailure(err)
	}
	hash := ""
	if operator != nil && !operator.Disabled {
		hash = operator.PasswordHash
	}
	if !auth.VerifyPassword(hash, password) {
		s.lockout.Fail(lockoutKey, now)
		return authPrincipal{}, forbidden(fmt.Errorf("invalid operator credentials"))
	}
	s.lockout.Clear(lockoutKey)
	return authPrincipal{AuthType: authTypeOperator, Name: operator.Username}, nil
}

func (s *Server) adminAuthRequired(ctx context.Context) (bool, error) {
	if s.adminToken != "" {
		return true, nil
	}
	if s.deps.Operators == nil {
		return false, nil
	}
	operators, err := s.deps.Operators.ListOperators(ctx)
	if err != nil {
		return false, err
	}
	return len(operators) > 0, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

// operatorLockoutKey pairs the client host with the lowercased username.
func operatorLockoutKey(username string, r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host + "|" + strings.ToLower(strings.TrimSpace(username))
}

func isMutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

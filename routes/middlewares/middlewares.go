package middlewares

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/oauth"

	"github.com/mbolis/quick-forms/errs"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/policy"
)

type AccountLookup interface {
	Get(ctx context.Context, id int64) (model.Account, error)
}

// rejection remembers why a presented token was not accepted, so that
// routes requiring an actor can answer with the precise reason.
type rejection struct {
	code string
	msg  string
}

type rejectionKey struct{}

// Identify resolves the bearer token, if any, into a policy.Actor stored in
// the request context. The actor is the account named by the token's
// account_id claim. A missing, unverifiable or disabled token leaves the
// request anonymous; Authenticated turns that into a 401.
func Identify(secret string, accounts AccountLookup) func(http.Handler) http.Handler {
	authorize := oauth.Authorize(secret, nil)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(code, msg string) {
				log.Debugf("%s: %s", code, msg)
				ctx := context.WithValue(r.Context(), rejectionKey{}, rejection{code: code, msg: msg})
				next.ServeHTTP(w, r.WithContext(ctx))
			}

			auth := r.Header.Get("authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				reject("identify.scheme", "Invalid credentials")
				return
			}

			// oauth.Authorize answers 401 on its own; capture that and keep
			// only the verified request
			var verified *http.Request
			buf := httpx.NewResponseBuffer()
			authorize(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				verified = r
			})).ServeHTTP(buf, r)
			if verified == nil {
				reject("identify.token", "Invalid credentials")
				return
			}

			claims, _ := verified.Context().Value(oauth.ClaimsContext).(map[string]string)
			id, err := strconv.ParseInt(claims["account_id"], 10, 64)
			if err != nil {
				reject("identify.claims", "Invalid credentials")
				return
			}

			account, err := accounts.Get(r.Context(), id)
			if err != nil {
				if errs.KindOf(err) == errs.NotFound {
					reject("identify.account", "Invalid credentials")
				} else {
					httpx.LogInternalError(w, r, "identify.db.get_account", err)
				}
				return
			}
			if !account.Active {
				reject("identify.inactive", "Account is disabled")
				return
			}

			ctx := policy.WithActor(r.Context(), policy.ActorOf(account))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticated rejects anonymous requests. It must run after Identify.
func Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if policy.ActorFrom(r.Context()) == nil {
			if rej, ok := r.Context().Value(rejectionKey{}).(rejection); ok {
				httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, rej.code, rej.msg)
				return
			}
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "auth.anonymous", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Admin lets through only actors allowed to manage accounts.
func Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !policy.CanManageAccounts(policy.ActorFrom(r.Context())) {
			httpx.LogStatusMsg(w, r, http.StatusForbidden, log.DebugLevel, "auth.admin", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

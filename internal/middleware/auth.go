package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/auth"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
)

type AccountSource interface {
	GetAccountByID(ctx context.Context, id int64) (model.Account, error)
}

type contextKey string

const AccountContextKey contextKey = "account"

func AccountFromContext(ctx context.Context) (model.Account, bool) {
	acc, ok := ctx.Value(AccountContextKey).(model.Account)
	return acc, ok
}

// AuthMiddleware loads the account on every request so role and status
// changes apply without waiting for the token to expire.
func AuthMiddleware(store AccountSource, tm *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			accountID, err := tm.ParseToken(tokenStr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			acc, err := store.GetAccountByID(r.Context(), accountID)
			if err != nil {
				if errors.Is(err, errs.ErrAccountNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized", "unknown account")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal", "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc, ok := AccountFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		if !acc.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden", errs.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// code and message are fixed strings, no escaping needed
	w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}

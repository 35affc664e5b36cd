package middleware

import (
	"context"
	"net/http"
	"strings"
)

// AccountHeader names the caller account on requests to the standalone service
const AccountHeader = "X-Account-Address"

type contextKey string

const accountContextKey contextKey = "account"

// WithAccount stores the caller account in ctx
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// AccountFromContext returns the caller account or ""
func AccountFromContext(ctx context.Context) string {
	if account, ok := ctx.Value(accountContextKey).(string); ok {
		return account
	}
	return ""
}

// AccountMiddleware copies the account header into the request context
func AccountMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if account := strings.TrimSpace(r.Header.Get(AccountHeader)); account != "" {
			r = r.WithContext(WithAccount(r.Context(), account))
		}
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware answers preflight requests and sets CORS headers. An empty
// origin list allows any origin.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0 || allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+AccountHeader)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net/http"

	"hashscope/internal/audit"
)

// AuditMiddleware appends one trail record per metered call. It must run
// inside APIKeyMiddleware so the authenticated key is already in the
// request context.
func AuditMiddleware(trail *audit.Trail, costWei int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if trail == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := audit.CallRecord{
				Method:     r.Method,
				Path:       r.URL.Path,
				RemoteAddr: r.RemoteAddr,
				CostWei:    costWei,
			}
			if key, ok := GetAPIKeyRecord(r.Context()); ok {
				rec.APIKeyID = key.KeyID
				rec.UserID = key.UserID.String()
			}
			trail.Append(rec)
			next.ServeHTTP(w, r)
		})
	}
}

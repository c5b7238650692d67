package audit

import "context"

type contextKey string

const clientIPKey contextKey = "audit_client_ip"

// WithClientIP stamps the caller's network address onto the context so audit
// entries written further down the call chain can carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the caller address stamped by WithClientIP,
// or nil outside a request scope.
func ClientIPFromContext(ctx context.Context) *string {
	ip, ok := ctx.Value(clientIPKey).(string)
	if !ok || ip == "" {
		return nil
	}
	return &ip
}

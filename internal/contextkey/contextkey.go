package contextkey

// ContextKey is the type for values stored in a request context.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request UUID set by the request ID middleware.
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyConnectionID carries the participant's connection ID once a handler has resolved it.
	ContextKeyConnectionID ContextKey = "connection_id"
)

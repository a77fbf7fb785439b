package shared

// Routes served by kv-server. Patterns use net/http ServeMux syntax.
const (
	PathKV        = "/kv/"
	PathAdminKV   = "/admin/kv"
	PathAdminStat = "/admin/stats"
	PathPoison    = "/admin/poison"
	PathHealth    = "/healthz"
	PathMetrics   = "/metrics"
)

// Ack is the body of a successful write.
const Ack = "OK"

const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderRequestID     = "X-Request-ID"
	HeaderETag          = "ETag"
	HeaderIfNoneMatch   = "If-None-Match"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// StatsResponse is returned by the admin stats endpoint.
type StatsResponse struct {
	Keys     int  `json:"keys"`
	Raw      int  `json:"raw"`
	Images   int  `json:"images"`
	Poisoned bool `json:"poisoned"`
}

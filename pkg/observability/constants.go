package observability

const (
	AttrAlgorithm      = "algorithm"
	AttrOutcome        = "outcome"
	AttrReason         = "reason"
	AttrLayer          = "layer"
	AttrBreakerFrom    = "from"
	AttrBreakerTo      = "to"
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrErrorType      = "error.type"

	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFallback = "fallback"

	SpanHTTPRequest = "http.request"
	SpanEvaluate    = "admission.evaluate"

	DefaultServiceName = "cerberus"
	DefaultMetricsPath = "/metrics"
)

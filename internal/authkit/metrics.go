package authkit

// MetricsRecorder increments counters for auth events.
type MetricsRecorder interface {
	Increment(event string)
}

const (
	MetricLoginSuccess   = "auth.login.success"
	MetricLoginFailure   = "auth.login.failure"
	MetricRefreshSuccess = "auth.refresh.success"
	MetricRefreshFailure = "auth.refresh.failure"
	MetricLogout         = "auth.logout"
	MetricNonceIssued    = "auth.nonce.issued"
)

type noopMetrics struct{}

func (noopMetrics) Increment(string) {}

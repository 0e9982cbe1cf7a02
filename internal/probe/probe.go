package probe

import "context"

// CheckResult is the outcome of one reachability check.
//
// Fields:
// - LatencyMS: round-trip of the attempt whose status was used, two decimals; -1 on failure.
// - StatusCode: HTTP status when a response arrived; 0 for transport errors.
// - Method: the method whose response was classified (HEAD, or GET after a 405).
// - Attempts: how many transport attempts were spent.
// - Permanent: the failure cannot change on retry, e.g. the URI does not form a request.
type CheckResult struct {
	Success    bool
	LatencyMS  float64
	StatusCode int
	Method     string
	Message    string
	Attempts   int
	Permanent  bool
}

// Checker performs a single check for a given target URI. It never returns an error;
// every failure is folded into the result.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}

// Success reports whether an HTTP status counts as reachable.
func Success(status int) bool {
	return status >= 200 && status < 300
}

// New builds the production prober: HEAD with GET fallback, per-attempt timeout and a
// retry budget for transport failures.
func New(opts Options) Checker {
	opts = opts.withDefaults()
	return &RetryChecker{
		Inner:    NewHTTPChecker(opts.Timeout),
		Attempts: opts.Attempts,
		Backoff:  opts.Backoff,
	}
}

package types

// ErrorCode classifies the failure modes of the engagement core. Codes travel
// inside structured results rather than as thrown errors so callers can branch
// on them deterministically.
type ErrorCode string

const (
	ErrCodeQueueFull    ErrorCode = "queue_full"    // ErrCodeQueueFull signals backpressure: skip this cycle, do not retry.
	ErrCodeTimeout      ErrorCode = "timeout"       // ErrCodeTimeout signals a bounded task exceeded its allowance.
	ErrCodeLimitReached ErrorCode = "limit_reached" // ErrCodeLimitReached is a policy no-op, not an error.
	ErrCodeCircuitOpen  ErrorCode = "circuit_open"  // ErrCodeCircuitOpen signals the endpoint is cooling down; fail fast.
	ErrCodeParseFailure ErrorCode = "parse_failure" // ErrCodeParseFailure signals an inference reply was not valid structured output.
	ErrCodeNavFailure   ErrorCode = "nav_failure"   // ErrCodeNavFailure signals a page action failed; caller returns to baseline.
	ErrCodeShutdown     ErrorCode = "shutdown"      // ErrCodeShutdown signals the queue is no longer accepting work.
)

// TaskResult is the structured outcome of a dive-queue task. Task failures are
// reported through this envelope, never as panics escaping the queue.
type TaskResult struct {
	// Success indicates whether the task completed normally.
	Success bool `json:"success"`

	// Result holds the task's return value on success.
	Result interface{} `json:"result,omitempty"`

	// Error holds the failure description; for taxonomy failures it is the
	// bare error code string (e.g. "queue_full", "timeout").
	Error string `json:"error,omitempty"`

	// UsedFallback is true when the result came from the task's fallback
	// after the primary timed out.
	UsedFallback bool `json:"used_fallback,omitempty"`
}

// Failure builds a TaskResult for the given error code.
func Failure(code ErrorCode) TaskResult {
	return TaskResult{Success: false, Error: string(code)}
}

// FailureMessage builds a TaskResult with a free-form error message.
func FailureMessage(msg string) TaskResult {
	return TaskResult{Success: false, Error: msg}
}

// Ok builds a successful TaskResult carrying result.
func Ok(result interface{}) TaskResult {
	return TaskResult{Success: true, Result: result}
}

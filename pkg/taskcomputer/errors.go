package taskcomputer

import "errors"

// Sentinel errors for the five failure kinds spec.md §7 distinguishes.
// They classify what the outcome dispatcher reports, not what it logs.
// Every kind except a rejected offer resolves to exactly one outbound
// send_task_failed or send_results call, never both; a rejected offer
// only resets the wait state.
var (
	// ErrOfferRejected means the task server refused a request_task or
	// request_resource call.
	ErrOfferRejected = errors.New("offer rejected by task server")

	// ErrResourceFailure means the resource transport failed to deliver
	// the input bundle for an accepted subtask.
	ErrResourceFailure = errors.New("resource transfer failed")

	// ErrExecutionTimeout means a worker exceeded its deadline. The
	// outcome dispatcher recognizes this kind only by the
	// "Task timed out" substring in the worker's own error message, per
	// spec.md §4.4/§4.8; this sentinel is for callers that want a typed
	// handle on the same condition.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrExecutionFailed means a worker produced a non-empty error that
	// was not a timeout.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrMalformedResult means a worker completed without error but its
	// result was missing data or result_type.
	ErrMalformedResult = errors.New("wrong result format")

	// ErrDirectComputationUnsupported is returned when a subtask with no
	// docker_images arrives and support_direct_computation is off.
	ErrDirectComputationUnsupported = errors.New("host direct task not supported")

	// ErrNotRunnable is returned by any operation that would start a new
	// worker while the computer is Quiescing.
	ErrNotRunnable = errors.New("task computer is not runnable")
)

const (
	// timeoutSubstring is the literal wire-level classifier spec.md §4.4
	// and §4.8 specify: a worker error containing this substring is
	// always classified as a timeout, regardless of ErrExecutionTimeout.
	timeoutSubstring = "Task timed out"

	// malformedResultReason is the fixed outbound failure reason for
	// ErrMalformedResult, spec.md §4.5 step 5 and §4.8 kind 5.
	malformedResultReason = "Wrong result format"

	// directUnsupportedReason is the fixed outbound failure reason for
	// ErrDirectComputationUnsupported, spec.md §4.4.
	directUnsupportedReason = "Host direct task not supported"
)

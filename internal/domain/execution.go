package domain

// Status represents the outcome of a code execution.
type Status string

const (
	// StatusSuccess means the child exited with code 0 before the deadline.
	StatusSuccess Status = "success"

	// StatusError means the child exited with a non-zero code before the
	// deadline, i.e. the submitted program itself failed.
	StatusError Status = "error"

	// StatusTimeout means the child did not exit before the deadline and was
	// terminated by the engine.
	StatusTimeout Status = "timeout"

	// StatusFailed means the engine itself could not complete the execution
	// (sandbox creation failed, process could not be launched, or an
	// unexpected internal fault occurred). The submitted program's own
	// correctness is not implicated.
	StatusFailed Status = "failed"
)

// IsValid checks whether the status is one of the four public outcomes.
func (s Status) IsValid() bool {
	switch s {
	case StatusSuccess, StatusError, StatusTimeout, StatusFailed:
		return true
	}
	return false
}

const (
	// DefaultTimeoutSeconds is applied when a request omits the timeout.
	DefaultTimeoutSeconds = 5

	// MinTimeoutSeconds and MaxTimeoutSeconds bound the per-request deadline.
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 30

	// MaxCodeBytes caps the size of submitted program text.
	MaxCodeBytes = 64 * 1024
)

// ExecuteRequest represents an incoming code execution request from the API.
type ExecuteRequest struct {
	Code    string `json:"code" binding:"required"`
	Timeout *int   `json:"timeout,omitempty" binding:"omitempty,min=1,max=30"`
}

// Validate enforces the domain rules the binding tags cannot express.
func (r *ExecuteRequest) Validate() error {
	if len(r.Code) == 0 {
		return ErrEmptyCode
	}
	if len(r.Code) > MaxCodeBytes {
		return ErrCodeTooLarge
	}
	if r.Timeout != nil && (*r.Timeout < MinTimeoutSeconds || *r.Timeout > MaxTimeoutSeconds) {
		return ErrInvalidTimeout
	}
	return nil
}

// TimeoutSeconds returns the effective deadline for this request, defaulting
// and clamping to the allowed range.
func (r *ExecuteRequest) TimeoutSeconds() int {
	if r.Timeout == nil {
		return DefaultTimeoutSeconds
	}
	t := *r.Timeout
	if t < MinTimeoutSeconds {
		return MinTimeoutSeconds
	}
	if t > MaxTimeoutSeconds {
		return MaxTimeoutSeconds
	}
	return t
}

// ExecutionResponse is the public result of one execution. Exactly one
// response is produced per admitted request; ReturnCode is present if and
// only if the status is success or error.
type ExecutionResponse struct {
	Status        Status  `json:"status"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExecutionTime float64 `json:"execution_time"`
	ReturnCode    *int    `json:"return_code,omitempty"`
}

package invoke

import (
	"time"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/tools"
)

// DefaultMaxRetries 是调用的默认最大重试次数。
const DefaultMaxRetries = 3

// Status 表示调用在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Invocation 描述一次排队执行的工具调用。
type Invocation struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Params     map[string]any `json:"params,omitempty"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *tools.Payload `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

var (
	// ErrInvocationNotFound 表示指定的调用不存在。
	ErrInvocationNotFound = xerrors.New(CodeInvocationNotFound, "invocation not found")
	// ErrInvocationConflict 表示调用在当前状态下无法进行所请求的操作。
	ErrInvocationConflict = xerrors.New(CodeInvocationConflict, "invocation conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrInvocationCompleted 表示调用已经成功完成。
	ErrInvocationCompleted = xerrors.New(CodeInvocationCompleted, "invocation already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrInvocationExhausted 表示调用的重试次数已经耗尽。
	ErrInvocationExhausted = xerrors.New(CodeInvocationExhausted, "invocation retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeInvocationNotFound   xerrors.Code = "INVOCATION_NOT_FOUND"
	CodeInvocationConflict   xerrors.Code = "INVOCATION_CONFLICT"
	CodeInvocationCompleted  xerrors.Code = "INVOCATION_COMPLETED"
	CodeInvocationExhausted  xerrors.Code = "INVOCATION_RETRIES_EXHAUSTED"
	CodeInvocationValidation xerrors.Code = "INVOCATION_VALIDATION_FAILED"
	CodeInvocationPublish    xerrors.Code = "INVOCATION_PUBLISH_FAILED"
	CodeInvocationProcessing xerrors.Code = "INVOCATION_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeInvocationNotFound, xerrors.Attributes{
		Message:  "invocation not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvocationConflict, xerrors.Attributes{
		Message:  "invocation conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeInvocationCompleted, xerrors.Attributes{
		Message:  "invocation already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvocationExhausted, xerrors.Attributes{
		Message:  "invocation retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeInvocationValidation, xerrors.Attributes{
		Message:  "invocation validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvocationPublish, xerrors.Attributes{
		Message:   "failed to publish invocation",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeInvocationProcessing, xerrors.Attributes{
		Message:   "invocation processing failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// NewInvocation 创建一条处于待处理状态的调用记录。
func NewInvocation(id, tool string, params map[string]any) *Invocation {
	now := time.Now().Unix()
	return &Invocation{
		ID:         id,
		Tool:       tool,
		Params:     cloneParams(params),
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	clone := make(map[string]any, len(params))
	for k, v := range params {
		clone[k] = v
	}
	return clone
}

func cloneInvocation(in *Invocation) *Invocation {
	if in == nil {
		return nil
	}
	clone := *in
	clone.Params = cloneParams(in.Params)
	if in.Result != nil {
		resultCopy := *in.Result
		clone.Result = &resultCopy
	}
	return &clone
}

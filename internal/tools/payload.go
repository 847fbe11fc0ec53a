package tools

import (
	"OpenMCP-Forge/internal/anvil"
	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/toolchain"
)

// Payload 是每次工具调用返回给调用方的统一结构化结果。
//
// 不变量：无论成败，每次调用都产出一个完整的 Payload——Success 永不缺省，
// 原始请求参数原样回显以便追溯。工具特有的字段是强类型的可选成员，
// 调用方按标记（Success/ErrorCode）分支读取，而不是探测字段是否存在。
type Payload struct {
	Tool    string         `json:"tool"`
	Success bool           `json:"success"`
	Params  map[string]any `json:"params,omitempty"`
	Stdout  string         `json:"stdout"`
	Stderr  string         `json:"stderr"`
	// ErrorCode 仅在失败时非空，取值为 internal/errors 的错误码。
	ErrorCode string `json:"error_code,omitempty"`
	// Advice 是面向调用方的提示性文字，属于文档而非契约。
	Advice string `json:"advice,omitempty"`

	// 工具特有的派生字段。
	Anvil      *anvil.StatusInfo `json:"anvil,omitempty"`
	GasDeltas  []GasDelta        `json:"gas_deltas,omitempty"`
	SessionRef string            `json:"session,omitempty"`
	Sender     string            `json:"sender,omitempty"`
}

// fromResult 把一次命令执行结果包装为 Payload。
func fromResult(tool string, params map[string]any, result toolchain.ExecutionResult) *Payload {
	p := &Payload{
		Tool:    tool,
		Success: result.Success,
		Params:  params,
		Stdout:  result.Stdout,
		Stderr:  result.Stderr,
	}
	if !result.Success {
		p.ErrorCode = string(xerrors.CodeNonZeroExit)
	}
	return p
}

// failure 把一个错误包装为失败 Payload，错误码来自统一错误类型。
func failure(tool string, params map[string]any, err error) *Payload {
	return &Payload{
		Tool:      tool,
		Success:   false,
		Params:    params,
		Stderr:    err.Error(),
		ErrorCode: string(xerrors.CodeOf(err)),
	}
}

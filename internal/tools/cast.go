package tools

import (
	"context"
	"strings"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/keys"
	"OpenMCP-Forge/internal/toolchain"
)

// castCallTool 执行只读的合约调用（cast call）。
type castCallTool struct {
	ts *Toolset
}

func (t *castCallTool) Name() string { return "cast_call" }

func (t *castCallTool) Describe() string {
	return "对合约执行只读调用，不产生交易"
}

func (t *castCallTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	to := strings.TrimSpace(stringParam(params, "to"))
	sig := strings.TrimSpace(stringParam(params, "sig"))
	if to == "" || sig == "" {
		return t.ts.advise(failure(t.Name(), params,
			xerrors.New(xerrors.CodeInvalidArgument, "cast_call 需要 to 与 sig 参数")))
	}

	exe, args := t.ts.defs.Resolve(toolchain.ToolCast)
	args = append(args, "call", to, sig)
	args = append(args, stringSliceParam(params, "args")...)
	args = appendRPCURL(args, params)

	result := t.ts.runner.Run(ctx, exe, args...)
	return t.ts.advise(fromResult(t.Name(), params, result))
}

// castSendTool 发送签名交易（cast send）。
//
// 签名私钥优先取显式参数，其次取配置的环境变量；两者都缺失时直接返回
// MissingCredential 失败，不会拉起底层工具。
type castSendTool struct {
	ts *Toolset
}

func (t *castSendTool) Name() string { return "cast_send" }

func (t *castSendTool) Describe() string {
	return "对合约发送签名交易，私钥缺省时从环境变量读取"
}

func (t *castSendTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	to := strings.TrimSpace(stringParam(params, "to"))
	sig := strings.TrimSpace(stringParam(params, "sig"))
	if to == "" || sig == "" {
		return t.ts.advise(failure(t.Name(), params,
			xerrors.New(xerrors.CodeInvalidArgument, "cast_send 需要 to 与 sig 参数")))
	}

	cred, err := keys.Resolve(stringParam(params, "private_key"), t.ts.keyEnv)
	if err != nil {
		return t.ts.advise(failure(t.Name(), params, err))
	}

	exe, args := t.ts.defs.Resolve(toolchain.ToolCast)
	args = append(args, "send", to, sig)
	args = append(args, stringSliceParam(params, "args")...)
	if value := strings.TrimSpace(stringParam(params, "value")); value != "" {
		args = append(args, "--value", value)
	}
	args = append(args, "--private-key", cred.PrivateKey)
	args = appendRPCURL(args, params)

	result := t.ts.runner.Run(ctx, exe, args...)
	payload := fromResult(t.Name(), params, result)
	payload.Sender = cred.Address
	return t.ts.advise(payload)
}

// castBalanceTool 查询账户余额（cast balance）。
type castBalanceTool struct {
	ts *Toolset
}

func (t *castBalanceTool) Name() string { return "cast_balance" }

func (t *castBalanceTool) Describe() string {
	return "查询账户余额；地址缺省时使用默认私钥派生的地址"
}

func (t *castBalanceTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	address := strings.TrimSpace(stringParam(params, "address"))
	payload := &Payload{Tool: t.Name(), Params: params}
	if address == "" {
		// 凭据相关的信息查询：没有地址参数时回退到默认私钥的地址。
		cred, err := keys.Resolve("", t.ts.keyEnv)
		if err != nil {
			return t.ts.advise(failure(t.Name(), params, err))
		}
		address = cred.Address
		payload.Sender = cred.Address
	}

	exe, args := t.ts.defs.Resolve(toolchain.ToolCast)
	args = append(args, "balance", address)
	args = appendRPCURL(args, params)

	result := t.ts.runner.Run(ctx, exe, args...)
	payload.Success = result.Success
	payload.Stdout = result.Stdout
	payload.Stderr = result.Stderr
	if !result.Success {
		payload.ErrorCode = string(xerrors.CodeNonZeroExit)
	}
	return t.ts.advise(payload)
}

// castReceiptTool 查询交易回执（cast receipt）。
type castReceiptTool struct {
	ts *Toolset
}

func (t *castReceiptTool) Name() string { return "cast_receipt" }

func (t *castReceiptTool) Describe() string {
	return "按交易哈希查询回执"
}

func (t *castReceiptTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	hash := strings.TrimSpace(stringParam(params, "tx_hash"))
	if hash == "" {
		return t.ts.advise(failure(t.Name(), params,
			xerrors.New(xerrors.CodeInvalidArgument, "cast_receipt 需要 tx_hash 参数")))
	}

	exe, args := t.ts.defs.Resolve(toolchain.ToolCast)
	args = append(args, "receipt", hash)
	args = appendRPCURL(args, params)

	result := t.ts.runner.Run(ctx, exe, args...)
	return t.ts.advise(fromResult(t.Name(), params, result))
}

func appendRPCURL(args []string, params map[string]any) []string {
	if rpc := strings.TrimSpace(stringParam(params, "rpc_url")); rpc != "" {
		return append(args, "--rpc-url", rpc)
	}
	return args
}

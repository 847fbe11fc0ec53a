package tools

import (
	"context"
	"encoding/json"
	"strings"

	"OpenMCP-Forge/internal/chisel"
	xerrors "OpenMCP-Forge/internal/errors"
)

// chiselEvalTool 通过脚本化会话驱动交互式求值工具。
//
// 这是唯一接受嵌套结构化参数的工具：experiment 对象整体映射为 chisel.Intent。
type chiselEvalTool struct {
	ts *Toolset
}

func (t *chiselEvalTool) Name() string { return "chisel_eval" }

func (t *chiselEvalTool) Describe() string {
	return "在交互式求值器里执行多步实验：fork、追踪、求值、内省、会话存取"
}

func (t *chiselEvalTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	intent, err := decodeIntent(params)
	if err != nil {
		return t.ts.advise(failure(t.Name(), params, err))
	}
	if strings.TrimSpace(intent.Code) == "" && strings.TrimSpace(intent.SessionRef) == "" {
		return t.ts.advise(failure(t.Name(), params,
			xerrors.New(xerrors.CodeInvalidArgument, "chisel_eval 需要 code 或 session 参数")))
	}

	script := intent.Build()
	transcript, err := t.ts.session.Run(ctx, script.Commands)
	if err != nil {
		payload := failure(t.Name(), params, err)
		// 部分 transcript 对调用方仍可能有用，保留在 stdout 里。
		payload.Stdout = transcript
		return t.ts.advise(payload)
	}

	return t.ts.advise(&Payload{
		Tool:       t.Name(),
		Success:    true,
		Params:     params,
		Stdout:     transcript,
		SessionRef: script.SavedAs,
	})
}

// decodeIntent 把 experiment 嵌套对象（或平铺参数）映射为 Intent。
func decodeIntent(params map[string]any) (chisel.Intent, error) {
	source := params
	if nested := objectParam(params, "experiment"); nested != nil {
		source = nested
	}

	encoded, err := json.Marshal(source)
	if err != nil {
		return chisel.Intent{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化参数失败")
	}
	var intent chisel.Intent
	if err := json.Unmarshal(encoded, &intent); err != nil {
		return chisel.Intent{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "experiment 参数格式无效")
	}
	return intent, nil
}

package tools

import (
	"context"
	"encoding/json"
	"strconv"

	"OpenMCP-Forge/internal/anvil"
	xerrors "OpenMCP-Forge/internal/errors"
)

// anvilStartTool 启动本地链模拟器。
type anvilStartTool struct {
	ts *Toolset
}

func (t *anvilStartTool) Name() string { return "anvil_start" }

func (t *anvilStartTool) Describe() string {
	return "启动本地链模拟器，同一时刻只允许一个实例"
}

func (t *anvilStartTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	opts := anvil.Options{
		Port:      intParam(params, "port"),
		ChainID:   int64(intParam(params, "chain_id")),
		ForkURL:   stringParam(params, "fork_url"),
		BlockTime: intParam(params, "block_time"),
		Accounts:  intParam(params, "accounts"),
		ExtraArgs: stringSliceParam(params, "extra_args"),
	}

	pid, err := t.ts.registry.Start(ctx, opts)
	if err != nil {
		return t.ts.advise(failure(t.Name(), params, err))
	}

	status := t.ts.registry.Status()
	return t.ts.advise(&Payload{
		Tool:    t.Name(),
		Success: true,
		Params:  params,
		Stdout:  "anvil started with pid " + strconv.Itoa(pid),
		Anvil:   &status,
	})
}

// anvilStopTool 停止本地链模拟器。
type anvilStopTool struct {
	ts *Toolset
}

func (t *anvilStopTool) Name() string { return "anvil_stop" }

func (t *anvilStopTool) Describe() string {
	return "优雅终止运行中的本地链模拟器"
}

func (t *anvilStopTool) Invoke(_ context.Context, params map[string]any) *Payload {
	if err := t.ts.registry.Stop(); err != nil {
		return t.ts.advise(failure(t.Name(), params, err))
	}
	return t.ts.advise(&Payload{
		Tool:    t.Name(),
		Success: true,
		Params:  params,
		Stdout:  "anvil stopped",
	})
}

// anvilStatusTool 查询模拟器状态，纯读操作。
type anvilStatusTool struct {
	ts *Toolset
}

func (t *anvilStatusTool) Name() string { return "anvil_status" }

func (t *anvilStatusTool) Describe() string {
	return "报告模拟器运行状态，运行中时附带链上探测信息"
}

func (t *anvilStatusTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	status := t.ts.registry.Probe(ctx, t.ts.registry.Status())

	encoded, err := json.Marshal(status)
	if err != nil {
		return t.ts.advise(failure(t.Name(), params, xerrors.Wrap(xerrors.CodeUnknown, err, "序列化状态失败")))
	}
	return t.ts.advise(&Payload{
		Tool:    t.Name(),
		Success: true,
		Params:  params,
		Stdout:  string(encoded),
		Anvil:   &status,
	})
}

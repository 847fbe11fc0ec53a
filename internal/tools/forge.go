package tools

import (
	"context"
	"strconv"
	"strings"

	"OpenMCP-Forge/internal/toolchain"
)

// buildTool 编译当前工程（forge build）。
type buildTool struct {
	ts *Toolset
}

func (t *buildTool) Name() string { return "forge_build" }

func (t *buildTool) Describe() string {
	return "编译 Foundry 工程内的全部合约"
}

func (t *buildTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	exe, args := t.ts.defs.Resolve(toolchain.ToolForge)
	args = append(args, "build")
	if boolParam(params, "force") {
		args = append(args, "--force")
	}
	if boolParam(params, "sizes") {
		args = append(args, "--sizes")
	}
	args = append(args, stringSliceParam(params, "extra_args")...)

	result := t.ts.runner.Run(ctx, exe, args...)
	return t.ts.advise(fromResult(t.Name(), params, result))
}

// testTool 运行工程测试（forge test）。
type testTool struct {
	ts *Toolset
}

func (t *testTool) Name() string { return "forge_test" }

func (t *testTool) Describe() string {
	return "运行 Foundry 测试，可按名称过滤并输出 gas 报告"
}

func (t *testTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	exe, args := t.ts.defs.Resolve(toolchain.ToolForge)
	args = append(args, "test")
	if match := strings.TrimSpace(stringParam(params, "match")); match != "" {
		args = append(args, "--match-test", match)
	}
	if contract := strings.TrimSpace(stringParam(params, "match_contract")); contract != "" {
		args = append(args, "--match-contract", contract)
	}
	if verbosity := intParam(params, "verbosity"); verbosity > 0 {
		// forge 用重复的 -v 表达详细级别。
		if verbosity > 5 {
			verbosity = 5
		}
		args = append(args, "-"+strings.Repeat("v", verbosity))
	}
	if boolParam(params, "gas_report") {
		args = append(args, "--gas-report")
	}
	args = append(args, stringSliceParam(params, "extra_args")...)

	result := t.ts.runner.Run(ctx, exe, args...)
	return t.ts.advise(fromResult(t.Name(), params, result))
}

// snapshotTool 运行 gas 快照并解析与基线的差异（forge snapshot --diff）。
type snapshotTool struct {
	ts *Toolset
}

func (t *snapshotTool) Name() string { return "forge_snapshot" }

func (t *snapshotTool) Describe() string {
	return "生成 gas 快照；diff 模式下解析每个测试的 gas 变化"
}

func (t *snapshotTool) Invoke(ctx context.Context, params map[string]any) *Payload {
	exe, args := t.ts.defs.Resolve(toolchain.ToolForge)
	args = append(args, "snapshot")

	diff := boolParam(params, "diff")
	if diff {
		target := strings.TrimSpace(stringParam(params, "baseline"))
		if target == "" {
			target = ".gas-snapshot"
		}
		args = append(args, "--diff", target)
	}
	if tolerance := intParam(params, "tolerance"); tolerance > 0 {
		args = append(args, "--tolerance", strconv.Itoa(tolerance))
	}
	args = append(args, stringSliceParam(params, "extra_args")...)

	result := t.ts.runner.Run(ctx, exe, args...)
	payload := fromResult(t.Name(), params, result)
	if diff && result.Success {
		payload.GasDeltas = ParseGasDeltas(result.Stdout)
	}
	return t.ts.advise(payload)
}

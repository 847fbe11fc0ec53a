package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"OpenMCP-Forge/internal/anvil"
	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/toolchain"
)

type fakeRunner struct {
	calls    int
	lastName string
	lastArgs []string
	result   toolchain.ExecutionResult
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) toolchain.ExecutionResult {
	f.calls++
	f.lastName = name
	f.lastArgs = args
	return f.result
}

type fakeSession struct {
	commands   []string
	transcript string
	err        error
}

func (f *fakeSession) Run(_ context.Context, commands []string) (string, error) {
	f.commands = commands
	return f.transcript, f.err
}

type fakeRegistry struct {
	running bool
	pid     int
	started int
	stopped int
}

func (f *fakeRegistry) Start(_ context.Context, _ anvil.Options) (int, error) {
	if f.running {
		return 0, anvil.ErrAlreadyRunning
	}
	f.running = true
	f.started++
	f.pid = 4242
	return f.pid, nil
}

func (f *fakeRegistry) Stop() error {
	if !f.running {
		return anvil.ErrNotRunning
	}
	f.running = false
	f.stopped++
	return nil
}

func (f *fakeRegistry) Status() anvil.StatusInfo {
	if !f.running {
		return anvil.StatusInfo{}
	}
	return anvil.StatusInfo{Running: true, PID: f.pid, RPCURL: "http://127.0.0.1:8545"}
}

func (f *fakeRegistry) Probe(_ context.Context, info anvil.StatusInfo) anvil.StatusInfo {
	return info
}

func newTestToolset(runner *fakeRunner, session *fakeSession, registry *fakeRegistry) *Toolset {
	return NewToolset(runner, session, registry, toolchain.Definitions{}, WithKeyEnv("TEST_TOOLSET_KEY"))
}

func register(t *testing.T, ts *Toolset) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := ts.RegisterAll(reg); err != nil {
		t.Fatalf("注册工具失败: %v", err)
	}
	return reg
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry()
	payload := reg.Invoke(context.Background(), "no_such_tool", nil)
	if payload.Success {
		t.Fatal("未知工具应当返回失败 Payload")
	}
	if payload.ErrorCode != string(xerrors.CodeNotFound) {
		t.Fatalf("unexpected error code: %s", payload.ErrorCode)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	ts := newTestToolset(&fakeRunner{}, &fakeSession{}, &fakeRegistry{})
	reg := register(t, ts)
	if err := ts.RegisterAll(reg); err == nil {
		t.Fatal("重复注册应当报错")
	}
}

func TestForgeTestArgumentAssembly(t *testing.T) {
	runner := &fakeRunner{result: toolchain.ExecutionResult{Success: true, Stdout: "ok"}}
	reg := register(t, newTestToolset(runner, &fakeSession{}, &fakeRegistry{}))

	payload := reg.Invoke(context.Background(), "forge_test", map[string]any{
		"match":      "testTransfer",
		"verbosity":  float64(3),
		"gas_report": true,
	})
	if !payload.Success {
		t.Fatalf("unexpected failure: %+v", payload)
	}
	want := []string{"test", "--match-test", "testTransfer", "-vvv", "--gas-report"}
	if runner.lastName != "forge" || !reflect.DeepEqual(runner.lastArgs, want) {
		t.Fatalf("参数拼装错误: %s %v", runner.lastName, runner.lastArgs)
	}
}

func TestCastSendMissingCredential(t *testing.T) {
	runner := &fakeRunner{result: toolchain.ExecutionResult{Success: true}}
	reg := register(t, newTestToolset(runner, &fakeSession{}, &fakeRegistry{}))

	payload := reg.Invoke(context.Background(), "cast_send", map[string]any{
		"to":  "0x1111111111111111111111111111111111111111",
		"sig": "transfer(address,uint256)",
	})
	if payload.Success {
		t.Fatal("缺少私钥时应当失败")
	}
	if payload.ErrorCode != string(xerrors.CodeMissingCredential) {
		t.Fatalf("unexpected error code: %s", payload.ErrorCode)
	}
	if runner.calls != 0 {
		t.Fatalf("缺少凭据时不应拉起底层工具, 调用了 %d 次", runner.calls)
	}
}

func TestCastSendWithExplicitKey(t *testing.T) {
	runner := &fakeRunner{result: toolchain.ExecutionResult{Success: true, Stdout: "0xabc"}}
	reg := register(t, newTestToolset(runner, &fakeSession{}, &fakeRegistry{}))

	payload := reg.Invoke(context.Background(), "cast_send", map[string]any{
		"to":          "0x1111111111111111111111111111111111111111",
		"sig":         "transfer(address,uint256)",
		"args":        []any{"0x2222222222222222222222222222222222222222", "100"},
		"private_key": "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		"rpc_url":     "http://127.0.0.1:8545",
	})
	if !payload.Success {
		t.Fatalf("unexpected failure: %+v", payload)
	}
	if payload.Sender != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("发送方地址派生错误: %s", payload.Sender)
	}
	if runner.calls != 1 {
		t.Fatalf("unexpected call count: %d", runner.calls)
	}
	// 私钥与 RPC 地址必须作为独立参数传递。
	foundKey, foundRPC := false, false
	for i, arg := range runner.lastArgs {
		if arg == "--private-key" && i+1 < len(runner.lastArgs) {
			foundKey = true
		}
		if arg == "--rpc-url" && i+1 < len(runner.lastArgs) {
			foundRPC = true
		}
	}
	if !foundKey || !foundRPC {
		t.Fatalf("参数缺失: %v", runner.lastArgs)
	}
}

func TestAnvilLifecycleTools(t *testing.T) {
	registry := &fakeRegistry{}
	reg := register(t, newTestToolset(&fakeRunner{}, &fakeSession{}, registry))
	ctx := context.Background()

	if payload := reg.Invoke(ctx, "anvil_start", map[string]any{}); !payload.Success {
		t.Fatalf("启动失败: %+v", payload)
	}
	if payload := reg.Invoke(ctx, "anvil_start", map[string]any{}); payload.Success ||
		payload.ErrorCode != string(xerrors.CodeAlreadyRunning) {
		t.Fatalf("二次启动应当返回 ALREADY_RUNNING: %+v", payload)
	}

	status := reg.Invoke(ctx, "anvil_status", map[string]any{})
	if !status.Success || status.Anvil == nil || !status.Anvil.Running {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	if payload := reg.Invoke(ctx, "anvil_stop", map[string]any{}); !payload.Success {
		t.Fatalf("停止失败: %+v", payload)
	}
	if payload := reg.Invoke(ctx, "anvil_stop", map[string]any{}); payload.Success ||
		payload.ErrorCode != string(xerrors.CodeNotRunning) {
		t.Fatalf("重复停止应当返回 NOT_RUNNING: %+v", payload)
	}
}

func TestChiselEvalBuildsScript(t *testing.T) {
	session := &fakeSession{transcript: "Welcome to Chisel!\n2\n"}
	reg := register(t, newTestToolset(&fakeRunner{}, session, &fakeRegistry{}))

	payload := reg.Invoke(context.Background(), "chisel_eval", map[string]any{
		"experiment": map[string]any{
			"code":          "1 + 1",
			"fork_url":      "https://x",
			"enable_traces": true,
			"save_session":  true,
		},
	})
	if !payload.Success {
		t.Fatalf("unexpected failure: %+v", payload)
	}
	if payload.SessionRef == "" {
		t.Fatal("保存会话时必须回传实际使用的标识")
	}
	if payload.Stdout != session.transcript {
		t.Fatalf("transcript 未透传: %q", payload.Stdout)
	}

	// 阶段顺序固定：fork → traces → code → save → quit。
	want := []string{"!fork https://x", "!traces", "1 + 1", "!save " + payload.SessionRef, "!quit"}
	if !reflect.DeepEqual(session.commands, want) {
		t.Fatalf("脚本顺序错误: %v", session.commands)
	}
}

func TestChiselEvalRequiresCodeOrSession(t *testing.T) {
	reg := register(t, newTestToolset(&fakeRunner{}, &fakeSession{}, &fakeRegistry{}))
	payload := reg.Invoke(context.Background(), "chisel_eval", map[string]any{})
	if payload.Success || payload.ErrorCode != string(xerrors.CodeInvalidArgument) {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	original := &Payload{
		Tool:    "forge_build",
		Success: true,
		Params:  map[string]any{"force": true},
		Stdout:  "Compiling 12 files\n",
		Stderr:  "warning: unused variable\n",
	}
	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	var decoded Payload
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if decoded.Success != original.Success || decoded.Stdout != original.Stdout || decoded.Stderr != original.Stderr {
		t.Fatalf("round-trip 不一致: %+v", decoded)
	}
}

func TestAdviserAttachesAdvice(t *testing.T) {
	runner := &fakeRunner{result: toolchain.ExecutionResult{Success: true}}
	ts := NewToolset(runner, &fakeSession{}, &fakeRegistry{}, toolchain.Definitions{},
		WithAdviser(NewStaticAdviser(map[string]string{"forge_build": "检查 out/ 目录获取产物"})),
		WithKeyEnv("TEST_TOOLSET_KEY"),
	)
	reg := register(t, ts)

	payload := reg.Invoke(context.Background(), "forge_build", map[string]any{})
	if payload.Advice != "检查 out/ 目录获取产物" {
		t.Fatalf("提示未附加: %+v", payload)
	}
}

package toolchain

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunnerCapturesStdout(t *testing.T) {
	runner := NewRunner(t.TempDir())
	result := runner.Run(context.Background(), "echo", "hello", "world")
	if !result.Success {
		t.Fatalf("命令执行失败: stderr=%q", result.Stderr)
	}
	if got := strings.TrimSpace(result.Stdout); got != "hello world" {
		t.Fatalf("unexpected stdout: got %q", got)
	}
}

func TestRunnerDoesNotUseShell(t *testing.T) {
	// 含有 shell 元字符的参数必须原样到达子进程。
	arg := "$HOME; rm -rf /tmp/x && echo injected"
	runner := NewRunner(t.TempDir())
	result := runner.Run(context.Background(), "echo", arg)
	if !result.Success {
		t.Fatalf("命令执行失败: stderr=%q", result.Stderr)
	}
	if got := strings.TrimSpace(result.Stdout); got != arg {
		t.Fatalf("参数被 shell 解释: got %q want %q", got, arg)
	}
}

func TestRunnerNonZeroExit(t *testing.T) {
	runner := NewRunner(t.TempDir())
	result := runner.Run(context.Background(), "false")
	if result.Success {
		t.Fatal("非零退出应当标记为失败")
	}
}

func TestRunnerSpawnFailure(t *testing.T) {
	runner := NewRunner(t.TempDir())
	result := runner.Run(context.Background(), "definitely-not-a-real-binary-1234")
	if result.Success {
		t.Fatal("不存在的可执行文件应当标记为失败")
	}
	if result.Stderr == "" {
		t.Fatal("启动失败时必须合成 stderr 信息")
	}
	if !strings.Contains(result.Stderr, "SPAWN_FAILURE") {
		t.Fatalf("stderr 缺少错误码: %q", result.Stderr)
	}
}

func TestRunnerTimeout(t *testing.T) {
	runner := NewRunner(t.TempDir(), WithTimeout(100*time.Millisecond))
	start := time.Now()
	result := runner.Run(context.Background(), "sleep", "10")
	if result.Success {
		t.Fatal("超时的命令应当标记为失败")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("超时后未及时终止子进程, 耗时 %s", elapsed)
	}
	if !strings.Contains(result.Stderr, "TIMEOUT") {
		t.Fatalf("stderr 缺少超时信息: %q", result.Stderr)
	}
}

func TestRunnerEmptyName(t *testing.T) {
	runner := NewRunner(t.TempDir())
	result := runner.Run(context.Background(), "  ")
	if result.Success {
		t.Fatal("空命令名应当失败")
	}
}

func TestDefinitionsResolve(t *testing.T) {
	defs := Definitions{Tools: map[string]Definition{
		ToolForge: {Executable: "/opt/foundry/bin/forge", DefaultArgs: []string{"--color", "never"}},
		ToolCast:  {DefaultArgs: []string{"--json"}},
	}}

	exe, args := defs.Resolve(ToolForge)
	if exe != "/opt/foundry/bin/forge" || len(args) != 2 {
		t.Fatalf("unexpected resolve: %q %v", exe, args)
	}

	exe, args = defs.Resolve(ToolCast)
	if exe != ToolCast || len(args) != 1 || args[0] != "--json" {
		t.Fatalf("unexpected resolve: %q %v", exe, args)
	}

	exe, args = defs.Resolve(ToolAnvil)
	if exe != ToolAnvil || args != nil {
		t.Fatalf("未配置的工具应当回退为规范名: %q %v", exe, args)
	}
}

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/pkg/logger"
)

// Runner 负责调用一次性的外部命令并捕获输出。
//
// 参数向量逐项传给子进程，不经过 shell 解释，以避免注入。
type Runner struct {
	workDir string
	timeout time.Duration
	logger  *slog.Logger
}

// RunnerOption 定义可选配置。
type RunnerOption func(*Runner)

// WithTimeout 限制单次命令的执行时长。
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithRunnerLogger 指定日志输出。
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner 创建 Runner，workDir 是所有命令的工作目录。
func NewRunner(workDir string, opts ...RunnerOption) *Runner {
	r := &Runner{workDir: workDir, timeout: 5 * time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("toolchain")
	}
	return r
}

// WorkDir 返回命令的工作目录。
func (r *Runner) WorkDir() string {
	return r.workDir
}

// Run 执行命令直到结束，并将成功与否、stdout、stderr 归一化为 ExecutionResult。
//
// 失败永远以值的形式返回：可执行文件缺失、启动失败、非零退出、超时都只体现在
// 结果里。不做重试，瞬时失败原样上报给调用方。
func (r *Runner) Run(ctx context.Context, name string, args ...string) ExecutionResult {
	if strings.TrimSpace(name) == "" {
		return Failure(xerrors.New(xerrors.CodeInvalidArgument, "未指定可执行文件").Error())
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	command := exec.CommandContext(runCtx, name, args...)
	if r.workDir != "" {
		command.Dir = r.workDir
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	start := time.Now()
	err := command.Run()
	elapsed := time.Since(start)

	result := ExecutionResult{
		Success: err == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	switch {
	case err == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Stderr = appendMessage(result.Stderr,
			xerrors.New(xerrors.CodeTimeout, fmt.Sprintf("命令 %s 执行超时（%s）", name, r.timeout)).Error())
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// 进程根本没有启动，stderr 为空，需要合成一条描述信息。
			result.Stderr = appendMessage(result.Stderr,
				xerrors.Wrap(xerrors.CodeSpawnFailure, err, fmt.Sprintf("启动 %s 失败", name)).Error())
		}
	}

	r.logger.Debug("命令执行完成",
		slog.String("command", name),
		slog.Any("args", args),
		slog.Bool("success", result.Success),
		slog.Duration("elapsed", elapsed),
	)
	return result
}

// appendMessage 在保留已捕获 stderr 的前提下追加合成信息。
func appendMessage(stderr, message string) string {
	if strings.TrimSpace(stderr) == "" {
		return message
	}
	return stderr + "\n" + message
}

package chisel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/pkg/logger"
)

// Driver 驱动一个持久的交互式子进程完成脚本化会话。
//
// 每次 Run 只拉起一个子进程：命令按给定顺序逐行写入 stdin，写完即关闭输入流，
// 输出与错误流按到达顺序累积为一份不区分来源的 transcript，直到子进程退出。
// 脚本必须以交互工具自己的退出指令收尾，驱动器只在超时兜底时强杀进程。
type Driver struct {
	executable  string
	defaultArgs []string
	workDir     string
	timeout     time.Duration
	logger      *slog.Logger
}

// DriverOption 定义可选配置。
type DriverOption func(*Driver)

// WithDriverExecutable 覆盖交互式求值工具（默认 chisel）。
func WithDriverExecutable(executable string, defaultArgs []string) DriverOption {
	return func(d *Driver) {
		if executable != "" {
			d.executable = executable
		}
		d.defaultArgs = append([]string(nil), defaultArgs...)
	}
}

// WithSessionTimeout 限制一次会话的总时长。
func WithSessionTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDriverLogger 指定日志输出。
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = l
	}
}

// NewDriver 创建 Driver，workDir 是子进程的工作目录。
func NewDriver(workDir string, opts ...DriverOption) *Driver {
	d := &Driver{executable: "chisel", workDir: workDir, timeout: 2 * time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.logger == nil {
		d.logger = logger.Named("chisel")
	}
	return d
}

// lockedBuffer 让 stdout/stderr 两条拷贝协程可以安全写入同一份 transcript。
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run 执行脚本并返回完整 transcript。
//
// 子进程非零退出时返回错误，错误信息中嵌入已累积的错误流内容；
// 是否继续使用部分 transcript 由调用方自行决定。
func (d *Driver) Run(ctx context.Context, commands []string) (string, error) {
	if len(commands) == 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "脚本命令列表为空")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, d.executable, d.defaultArgs...)
	if d.workDir != "" {
		cmd.Dir = d.workDir
	}

	transcript := &lockedBuffer{}
	var stderr bytes.Buffer
	cmd.Stdout = transcript
	// 错误流同时进入 transcript 与独立缓冲：前者保持到达顺序，
	// 后者用于非零退出时的错误报告。
	cmd.Stderr = io.MultiWriter(transcript, &stderr)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpawnFailure, err, "创建 stdin 管道失败")
	}

	if err := cmd.Start(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpawnFailure, err, fmt.Sprintf("启动 %s 失败", d.executable))
	}

	start := time.Now()
	writeErr := func() error {
		defer stdin.Close()
		for _, line := range commands {
			if _, err := io.WriteString(stdin, line+"\n"); err != nil {
				return err
			}
		}
		return nil
	}()

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	d.logger.Debug("交互会话结束",
		slog.Int("commands", len(commands)),
		slog.Duration("elapsed", elapsed),
		slog.Bool("success", waitErr == nil),
	)

	switch {
	case waitErr == nil:
		return transcript.String(), nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return transcript.String(), xerrors.New(xerrors.CodeTimeout,
			fmt.Sprintf("交互会话超时（%s），子进程已被强制终止", d.timeout))
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			message := strings.TrimSpace(stderr.String())
			if message == "" {
				message = waitErr.Error()
			}
			return transcript.String(), xerrors.New(xerrors.CodeNonZeroExit, message)
		}
		if writeErr != nil {
			return transcript.String(), xerrors.Wrap(xerrors.CodeUnknown, writeErr, "写入脚本命令失败")
		}
		return transcript.String(), xerrors.Wrap(xerrors.CodeUnknown, waitErr, "等待子进程退出失败")
	}
}

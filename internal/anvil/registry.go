package anvil

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/pkg/logger"
)

var (
	// ErrAlreadyRunning 表示本地链模拟器已经在运行。
	ErrAlreadyRunning = xerrors.New(xerrors.CodeAlreadyRunning, "anvil 已在运行")
	// ErrNotRunning 表示当前没有运行中的模拟器进程。
	ErrNotRunning = xerrors.New(xerrors.CodeNotRunning, "anvil 未运行")
)

// Options 描述启动模拟器时可配置的参数。
type Options struct {
	Port      int      `json:"port"`
	ChainID   int64    `json:"chain_id"`
	ForkURL   string   `json:"fork_url"`
	BlockTime int      `json:"block_time"`
	Accounts  int      `json:"accounts"`
	ExtraArgs []string `json:"extra_args"`
}

// StatusInfo 是 Status 查询的只读结果。
type StatusInfo struct {
	Running     bool   `json:"running"`
	PID         int    `json:"pid,omitempty"`
	RPCURL      string `json:"rpc_url,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// Registry 管理单例的后台链模拟器进程。
//
// 进程句柄是整个系统里唯一的共享可变状态，所有读写都经过互斥锁，
// 两次并发 Start 不会竞争出双重启动。句柄只由 Registry 持有，
// 调用方只能通过 Status 观察。
type Registry struct {
	mu         sync.Mutex
	executable string
	extraArgs  []string
	workDir    string
	logger     *slog.Logger

	cmd    *exec.Cmd
	port   int
	waitCh chan struct{}
}

// RegistryOption 定义可选配置。
type RegistryOption func(*Registry)

// WithExecutable 覆盖模拟器可执行文件（默认 anvil）。
func WithExecutable(executable string, defaultArgs []string) RegistryOption {
	return func(r *Registry) {
		if executable != "" {
			r.executable = executable
		}
		r.extraArgs = append([]string(nil), defaultArgs...)
	}
}

// WithRegistryLogger 指定日志输出。
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry 创建 Registry，workDir 是模拟器进程的工作目录。
func NewRegistry(workDir string, opts ...RegistryOption) *Registry {
	r := &Registry{executable: "anvil", workDir: workDir}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("anvil")
	}
	return r
}

// Start 启动模拟器并保留进程句柄。已有存活进程时返回 ErrAlreadyRunning，
// 原句柄保持不变。
func (r *Registry) Start(_ context.Context, opts Options) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.liveLocked() {
		return 0, ErrAlreadyRunning
	}
	r.cmd = nil

	port := opts.Port
	if port <= 0 {
		port = 8545
	}

	args := append([]string(nil), r.extraArgs...)
	args = append(args, "--port", strconv.Itoa(port))
	if opts.ChainID > 0 {
		args = append(args, "--chain-id", strconv.FormatInt(opts.ChainID, 10))
	}
	if opts.ForkURL != "" {
		args = append(args, "--fork-url", opts.ForkURL)
	}
	if opts.BlockTime > 0 {
		args = append(args, "--block-time", strconv.Itoa(opts.BlockTime))
	}
	if opts.Accounts > 0 {
		args = append(args, "--accounts", strconv.Itoa(opts.Accounts))
	}
	args = append(args, opts.ExtraArgs...)

	// 模拟器的生命周期独立于单次 API 请求，这里特意不绑定请求上下文。
	cmd := exec.Command(r.executable, args...)
	if r.workDir != "" {
		cmd.Dir = r.workDir
	}

	if err := cmd.Start(); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeSpawnFailure, err, fmt.Sprintf("启动 %s 失败", r.executable))
	}

	waitCh := make(chan struct{})
	r.cmd = cmd
	r.port = port
	r.waitCh = waitCh

	go func() {
		_ = cmd.Wait()
		close(waitCh)
		r.mu.Lock()
		if r.cmd == cmd {
			r.cmd = nil
			r.waitCh = nil
		}
		r.mu.Unlock()
	}()

	r.logger.Info("anvil 已启动",
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("port", port),
		slog.String("fork_url", opts.ForkURL),
	)
	return cmd.Process.Pid, nil
}

// Stop 向模拟器发送优雅终止信号并清空句柄。未运行时返回 ErrNotRunning。
func (r *Registry) Stop() error {
	r.mu.Lock()
	if !r.liveLocked() {
		r.cmd = nil
		r.mu.Unlock()
		return ErrNotRunning
	}
	cmd := r.cmd
	waitCh := r.waitCh
	r.cmd = nil
	r.waitCh = nil
	r.mu.Unlock()

	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "发送终止信号失败")
	}
	if waitCh != nil {
		select {
		case <-waitCh:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	r.logger.Info("anvil 已停止", slog.Int("pid", pid))
	return nil
}

// Status 报告当前状态，纯读操作。
func (r *Registry) Status() StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.liveLocked() {
		return StatusInfo{Running: false}
	}
	return StatusInfo{
		Running: true,
		PID:     r.cmd.Process.Pid,
		RPCURL:  fmt.Sprintf("http://127.0.0.1:%d", r.port),
	}
}

// Cleanup 在宿主进程退出前兜底终止模拟器，幂等，可重复调用。
func (r *Registry) Cleanup() {
	r.mu.Lock()
	cmd := r.cmd
	waitCh := r.waitCh
	r.cmd = nil
	r.waitCh = nil
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	if waitCh != nil {
		select {
		case <-waitCh:
			return
		case <-time.After(2 * time.Second):
		}
	}
	_ = cmd.Process.Kill()
	r.logger.Info("anvil 清理完成", slog.Int("pid", cmd.Process.Pid))
}

// liveLocked 检测持有的句柄是否仍然存活，调用方必须持锁。
func (r *Registry) liveLocked() bool {
	if r.cmd == nil || r.cmd.Process == nil {
		return false
	}
	return r.cmd.Process.Signal(syscall.Signal(0)) == nil
}

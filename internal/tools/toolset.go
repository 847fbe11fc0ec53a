package tools

import (
	"context"

	"OpenMCP-Forge/internal/anvil"
	"OpenMCP-Forge/internal/toolchain"
)

// CommandRunner 抽象一次性命令的执行能力，便于测试注入。
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) toolchain.ExecutionResult
}

// SessionRunner 抽象交互式会话的执行能力。
type SessionRunner interface {
	Run(ctx context.Context, commands []string) (string, error)
}

// ProcessRegistry 抽象后台模拟器的生命周期管理。
type ProcessRegistry interface {
	Start(ctx context.Context, opts anvil.Options) (int, error)
	Stop() error
	Status() anvil.StatusInfo
	Probe(ctx context.Context, info anvil.StatusInfo) anvil.StatusInfo
}

// Toolset 汇集全部工具共享的依赖。
type Toolset struct {
	runner   CommandRunner
	session  SessionRunner
	registry ProcessRegistry
	defs     toolchain.Definitions
	adviser  Adviser
	// keyEnv 是默认签名私钥所在的环境变量名。
	keyEnv string
}

// ToolsetOption 定义可选配置。
type ToolsetOption func(*Toolset)

// WithAdviser 配置提示提供者。
func WithAdviser(adviser Adviser) ToolsetOption {
	return func(ts *Toolset) {
		ts.adviser = adviser
	}
}

// WithKeyEnv 覆盖默认私钥环境变量名。
func WithKeyEnv(envName string) ToolsetOption {
	return func(ts *Toolset) {
		if envName != "" {
			ts.keyEnv = envName
		}
	}
}

// NewToolset 组装工具集。
func NewToolset(runner CommandRunner, session SessionRunner, registry ProcessRegistry, defs toolchain.Definitions, opts ...ToolsetOption) *Toolset {
	ts := &Toolset{
		runner:   runner,
		session:  session,
		registry: registry,
		defs:     defs,
		keyEnv:   "PRIVATE_KEY",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// RegisterAll 把全部工具注册到指定注册表。
func (ts *Toolset) RegisterAll(reg *Registry) error {
	all := []Tool{
		&buildTool{ts: ts},
		&testTool{ts: ts},
		&snapshotTool{ts: ts},
		&anvilStartTool{ts: ts},
		&anvilStopTool{ts: ts},
		&anvilStatusTool{ts: ts},
		&castCallTool{ts: ts},
		&castSendTool{ts: ts},
		&castBalanceTool{ts: ts},
		&castReceiptTool{ts: ts},
		&chiselEvalTool{ts: ts},
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// advise 把提示文字附加到结果上。
func (ts *Toolset) advise(p *Payload) *Payload {
	if ts.adviser != nil && p != nil {
		p.Advice = ts.adviser.Advice(p.Tool)
	}
	return p
}

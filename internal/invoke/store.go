package invoke

import (
	"context"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/tools"
)

// Store 抽象了调用记录的持久化接口。
type Store interface {
	Create(ctx context.Context, in *Invocation) error
	Get(ctx context.Context, id string) (*Invocation, error)
	// Claim 把待执行的调用置为运行中并累加尝试次数。
	Claim(ctx context.Context, id string) (*Invocation, error)
	MarkSucceeded(ctx context.Context, id string, result *tools.Payload) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result *tools.Payload, terminal bool) error
	List(ctx context.Context, limit int) ([]*Invocation, error)
	Close() error
}

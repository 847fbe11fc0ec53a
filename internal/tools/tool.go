package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	xerrors "OpenMCP-Forge/internal/errors"
)

// Tool 是单个可供外部智能体调用的工具。
//
// Invoke 永远返回一个完整的 Payload，失败同样以 Payload 表达，
// 不允许任何错误越过这条边界向上抛出。
type Tool interface {
	Name() string
	Describe() string
	Invoke(ctx context.Context, params map[string]any) *Payload
}

// Registry keeps track of registered tools and dispatches invocations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "tool 不能为空")
	}
	name := t.Name()
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "tool 名称不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("tool %s 已注册", name))
	}
	r.tools[name] = t
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke dispatches to the named tool. Unknown tools yield a failure payload,
// never a dropped response.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) *Payload {
	t, ok := r.Get(name)
	if !ok {
		return failure(name, params, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知的工具: %s", name)))
	}
	return t.Invoke(ctx, params)
}

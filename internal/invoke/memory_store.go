package invoke

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/tools"
)

// MemoryStore 以内存方式保存调用记录，主要用于测试与单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Invocation
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Invocation)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, in *Invocation) error {
	if in == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation 不能为空")
	}
	if in.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "调用 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[in.ID]; ok {
		return ErrInvocationConflict
	}
	now := time.Now().Unix()
	if in.CreatedAt == 0 {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	m.records[in.ID] = cloneInvocation(in)
	return nil
}

// Get 返回调用记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrInvocationNotFound
	}
	return cloneInvocation(record), nil
}

// Claim 把调用状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrInvocationNotFound
	}
	switch record.Status {
	case StatusSucceeded:
		return cloneInvocation(record), ErrInvocationCompleted
	case StatusRunning:
		return cloneInvocation(record), ErrInvocationConflict
	}
	if record.Attempts >= record.MaxRetries {
		return cloneInvocation(record), ErrInvocationExhausted
	}
	record.Status = StatusRunning
	record.Attempts++
	record.LastError = ""
	record.ErrorCode = ""
	record.UpdatedAt = time.Now().Unix()
	return cloneInvocation(record), nil
}

// MarkSucceeded 记录成功结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result *tools.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrInvocationNotFound
	}
	record.Status = StatusSucceeded
	record.Result = result
	record.LastError = ""
	record.ErrorCode = ""
	record.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记调用失败，result 保留失败时产出的 Payload（若有）。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, result *tools.Payload, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrInvocationNotFound
	}
	if terminal {
		record.Status = StatusFailed
	} else {
		record.Status = StatusPending
	}
	record.LastError = lastError
	record.ErrorCode = string(code)
	if result != nil {
		record.Result = result
	}
	record.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回最近的调用记录，按创建时间倒序。
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	results := make([]*Invocation, 0, len(m.records))
	for _, record := range m.records {
		results = append(results, cloneInvocation(record))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt != results[j].CreatedAt {
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].ID > results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error {
	return nil
}

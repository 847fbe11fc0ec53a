package invoke

import (
	"context"
	stdErrors "errors"
	"testing"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/tools"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record := NewInvocation("inv-1", "forge_build", map[string]any{"project_root": "/tmp/demo"})
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("创建调用记录失败: %v", err)
	}
	if err := store.Create(ctx, record); !stdErrors.Is(err, ErrInvocationConflict) {
		t.Fatalf("重复创建应返回冲突错误, 实际: %v", err)
	}

	claimed, err := store.Claim(ctx, "inv-1")
	if err != nil {
		t.Fatalf("领取调用失败: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("领取后的状态异常: status=%s attempts=%d", claimed.Status, claimed.Attempts)
	}

	if _, err := store.Claim(ctx, "inv-1"); !stdErrors.Is(err, ErrInvocationConflict) {
		t.Fatalf("运行中的调用被再次领取应返回冲突, 实际: %v", err)
	}

	payload := &tools.Payload{Tool: "forge_build", Success: true, Stdout: "Compiler run successful"}
	if err := store.MarkSucceeded(ctx, "inv-1", payload); err != nil {
		t.Fatalf("标记成功失败: %v", err)
	}
	final, err := store.Get(ctx, "inv-1")
	if err != nil {
		t.Fatalf("查询调用失败: %v", err)
	}
	if final.Status != StatusSucceeded || final.Result == nil || !final.Result.Success {
		t.Fatalf("成功后的记录不完整: %+v", final)
	}
	if _, err := store.Claim(ctx, "inv-1"); !stdErrors.Is(err, ErrInvocationCompleted) {
		t.Fatalf("已完成的调用应拒绝领取, 实际: %v", err)
	}
}

func TestMemoryStoreRetryExhaustion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record := NewInvocation("inv-retry", "forge_test", nil)
	record.MaxRetries = 2
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("创建调用记录失败: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := store.Claim(ctx, "inv-retry")
		if err != nil {
			t.Fatalf("第 %d 次领取失败: %v", attempt, err)
		}
		if claimed.Attempts != attempt {
			t.Fatalf("尝试次数不符: 期望 %d, 实际 %d", attempt, claimed.Attempts)
		}
		if err := store.MarkFailed(ctx, "inv-retry", xerrors.CodeTimeout, "操作超时", nil, false); err != nil {
			t.Fatalf("标记失败出错: %v", err)
		}
	}

	if _, err := store.Claim(ctx, "inv-retry"); !stdErrors.Is(err, ErrInvocationExhausted) {
		t.Fatalf("重试耗尽后应拒绝领取, 实际: %v", err)
	}
}

func TestMemoryStoreMarkFailedTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, NewInvocation("inv-term", "cast_send", nil)); err != nil {
		t.Fatalf("创建调用记录失败: %v", err)
	}
	if _, err := store.Claim(ctx, "inv-term"); err != nil {
		t.Fatalf("领取调用失败: %v", err)
	}

	failure := &tools.Payload{Tool: "cast_send", Success: false, ErrorCode: string(xerrors.CodeMissingCredential)}
	if err := store.MarkFailed(ctx, "inv-term", xerrors.CodeMissingCredential, "未配置私钥", failure, true); err != nil {
		t.Fatalf("标记终态失败出错: %v", err)
	}

	record, err := store.Get(ctx, "inv-term")
	if err != nil {
		t.Fatalf("查询调用失败: %v", err)
	}
	if record.Status != StatusFailed {
		t.Fatalf("终态失败后的状态应为 failed, 实际: %s", record.Status)
	}
	if record.ErrorCode != string(xerrors.CodeMissingCredential) || record.LastError != "未配置私钥" {
		t.Fatalf("失败信息未记录: %+v", record)
	}
	if record.Result == nil || record.Result.Success {
		t.Fatalf("失败 Payload 应被保留: %+v", record.Result)
	}
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i, id := range []string{"inv-a", "inv-b", "inv-c"} {
		record := NewInvocation(id, "forge_build", nil)
		record.CreatedAt = int64(100 + i)
		if err := store.Create(ctx, record); err != nil {
			t.Fatalf("创建 %s 失败: %v", id, err)
		}
	}

	results, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("列出调用失败: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("期望返回 2 条记录, 实际 %d", len(results))
	}
	if results[0].ID != "inv-c" || results[1].ID != "inv-b" {
		t.Fatalf("记录排序异常: %s, %s", results[0].ID, results[1].ID)
	}
}

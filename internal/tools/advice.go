package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Adviser 为工具结果补充提示性文字。提示属于文档而非契约，缺失不影响调用。
type Adviser interface {
	Advice(tool string) string
}

// StaticAdviser 通过加载 JSON 文件提供静态提示。
type StaticAdviser struct {
	entries map[string]string
}

// NewStaticAdviser 创建静态提示实例。
func NewStaticAdviser(entries map[string]string) *StaticAdviser {
	if entries == nil {
		entries = map[string]string{}
	}
	return &StaticAdviser{entries: entries}
}

// LoadStaticAdviser 从 JSON 文件加载提示条目（工具名 → 提示文字）。
func LoadStaticAdviser(path string) (*StaticAdviser, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("提示文件路径不能为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取提示文件失败: %w", err)
	}

	var entries map[string]string
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("解析提示文件失败: %w", err)
	}
	return NewStaticAdviser(entries), nil
}

// Advice 实现 Adviser 接口。
func (a *StaticAdviser) Advice(tool string) string {
	if a == nil {
		return ""
	}
	return a.entries[tool]
}

package toolchain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 工具链内四个外部命令的规范名。
const (
	ToolForge  = "forge"
	ToolAnvil  = "anvil"
	ToolCast   = "cast"
	ToolChisel = "chisel"
)

// Definitions models the structure of configs/toolchain.yaml.
type Definitions struct {
	Tools map[string]Definition `yaml:"tools"`
}

// Definition describes how one external tool is located and invoked.
type Definition struct {
	// Executable overrides the binary looked up on PATH. Empty means the
	// canonical tool name.
	Executable string `yaml:"executable"`
	// DefaultArgs are prepended to every invocation of the tool.
	DefaultArgs []string `yaml:"default_args"`
	Description string   `yaml:"description"`
}

// LoadDefinitions parses the YAML file containing toolchain overrides. An
// empty path yields an empty definition set, every tool then resolves to its
// canonical name.
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{Tools: map[string]Definition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("读取工具链配置失败: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, fmt.Errorf("解析工具链配置失败: %w", err)
	}
	if defs.Tools == nil {
		defs.Tools = map[string]Definition{}
	}
	return defs, nil
}

// Resolve 返回工具对应的可执行文件名与默认参数。
func (d Definitions) Resolve(tool string) (string, []string) {
	def, ok := d.Tools[tool]
	if !ok || strings.TrimSpace(def.Executable) == "" {
		if ok {
			return tool, append([]string(nil), def.DefaultArgs...)
		}
		return tool, nil
	}
	return def.Executable, append([]string(nil), def.DefaultArgs...)
}

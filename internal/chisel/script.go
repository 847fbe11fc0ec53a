package chisel

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intent 描述一次交互式求值的结构化意图，由上层工具参数直接映射而来。
type Intent struct {
	// SessionRef 是外部工具自己理解的会话快照标识，这里只透传，不解析。
	SessionRef string `json:"session,omitempty"`
	// ForkURL 非空时在求值前 fork 指定网络。
	ForkURL string `json:"fork_url,omitempty"`
	// EnableTraces 打开调用追踪。
	EnableTraces bool `json:"enable_traces,omitempty"`
	// Code 是要执行的 Solidity 表达式或语句。
	Code string `json:"code"`
	// DebugDepth 控制求值后的内省深度：0 不内省，1 转储内存与栈。
	DebugDepth int `json:"debug_depth,omitempty"`
	// Variables 列出求值后需要逐个检视的变量名，仅在 DebugDepth > 0 时生效。
	Variables []string `json:"variables,omitempty"`
	// SaveSession 要求把会话持久化；未提供 SessionRef 时自动生成唯一标识。
	SaveSession bool `json:"save_session,omitempty"`
}

// Script 是构建完成的命令序列以及相关的派生信息。
type Script struct {
	Commands []string
	// SavedAs 记录保存会话时实际使用的标识，未保存时为空。
	SavedAs string
}

// 脚本各阶段使用的交互命令。
const (
	cmdLoad      = "!load"
	cmdFork      = "!fork"
	cmdTraces    = "!traces"
	cmdMemDump   = "!memdump"
	cmdStackDump = "!stackdump"
	cmdRawStack  = "!rawstack"
	cmdSave      = "!save"
	cmdQuit      = "!quit"
)

// Build 把意图翻译为固定阶段顺序的命令序列：
// load → fork → traces → code → 内省 → save → quit。
// 阶段顺序与输入字段的书写顺序无关，缺省的阶段直接跳过，永不重排。
func (in Intent) Build() Script {
	var script Script
	commands := make([]string, 0, 8+len(in.Variables))

	if ref := strings.TrimSpace(in.SessionRef); ref != "" {
		commands = append(commands, cmdLoad+" "+ref)
	}
	if fork := strings.TrimSpace(in.ForkURL); fork != "" {
		commands = append(commands, cmdFork+" "+fork)
	}
	if in.EnableTraces {
		commands = append(commands, cmdTraces)
	}
	if code := strings.TrimSpace(in.Code); code != "" {
		commands = append(commands, code)
	}
	if in.DebugDepth > 0 {
		commands = append(commands, cmdMemDump, cmdStackDump)
		for _, variable := range in.Variables {
			if v := strings.TrimSpace(variable); v != "" {
				commands = append(commands, cmdRawStack+" "+v)
			}
		}
	}
	if in.SaveSession {
		ref := strings.TrimSpace(in.SessionRef)
		if ref == "" {
			ref = GenerateSessionRef()
		}
		script.SavedAs = ref
		commands = append(commands, cmdSave+" "+ref)
	}
	commands = append(commands, cmdQuit)

	script.Commands = commands
	return script
}

// GenerateSessionRef 生成一个跨并发调用不会碰撞的会话标识。
func GenerateSessionRef() string {
	return fmt.Sprintf("session-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

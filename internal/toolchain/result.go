package toolchain

// ExecutionResult 保存一次外部命令执行的结果。构造后不再修改。
//
// Success 为 false 时表示子进程以非零状态退出，或根本没有启动成功；
// 两种情况都只体现在返回值里，永远不会以 panic 或未捕获错误的形式外泄。
type ExecutionResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Failure 构造一个描述启动失败的结果，stderr 为合成的错误信息。
func Failure(message string) ExecutionResult {
	return ExecutionResult{Success: false, Stderr: message}
}

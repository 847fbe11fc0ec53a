// Package toolchain 封装对 Foundry 外部命令（forge、anvil、cast、chisel）的
// 一次性调用。Runner 把参数向量原样传给子进程（不经过 shell），在工作目录内
// 同步执行并捕获 stdout/stderr，所有失败都归一化为 ExecutionResult 值返回。
// 工具到可执行文件的映射可以通过 YAML 定义文件覆盖。
package toolchain

// Package tools 把工具链操作封装为可供外部智能体调用的具名工具，并通过
// Registry 统一派发。每个工具接受一组具名参数，返回统一的结构化 Payload：
// 成败都以值表达，原始参数回显，工具特有的派生字段（gas 变化、会话标识、
// 模拟器状态、发送方地址）是强类型的可选成员。
package tools

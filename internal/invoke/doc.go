// Package invoke 提供异步工具调用流水线：调用记录的持久化、
// 队列投递以及后台处理循环。提交的调用首先写入 Store，再通过
// Producer 投递；Processor 消费队列，领取记录并交给工具注册表
// 执行，根据结果与错误码属性决定重试或终止。
package invoke

// Package anvil 管理本地链模拟器的单例后台进程。Registry 持有全系统唯一的
// 进程句柄，提供 Start/Stop/Status/Cleanup 生命周期语义：重复启动是用户错误
// 而不是需要仲裁的竞态，宿主进程退出前由信号处理统一调用 Cleanup 兜底，
// 保证不遗留孤儿进程。运行中的状态查询可以附带对模拟器 JSON-RPC 端点的
// 存活探测。
package anvil

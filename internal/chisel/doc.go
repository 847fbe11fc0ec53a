// Package chisel 驱动交互式 Solidity 求值工具完成脚本化会话。Intent 按固定的
// 阶段顺序（载入会话 → fork 网络 → 开启追踪 → 执行代码 → 内省 → 保存 → 退出）
// 构建命令序列，Driver 把序列逐行写入子进程 stdin 并收集完整 transcript。
// 会话快照标识对本系统是不透明的，只负责透传。
package chisel

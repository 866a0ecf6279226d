// Package tasks 定义后台任务的类型名和 payload 构造器。
package tasks

import (
	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	// TypePartyExpireSweep 周期性停用已过期队伍的清扫任务
	TypePartyExpireSweep = "party:expire_sweep"
)

// NewPartyExpireSweepTask 创建一个过期清扫任务。
// 清扫范围由处理器自己扫库决定，不需要 payload。
func NewPartyExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TypePartyExpireSweep, nil)
}

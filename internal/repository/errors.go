package repository

import "errors"

// 仓库层的哨兵错误：由具体实现把驱动错误翻译成这两个值，
// 服务层只依赖它们做分支，不感知底层数据库。
var (
	// ErrNotFound 表示查询的记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEntry 表示唯一索引冲突（邮箱或邀请码重复）。
	ErrDuplicateEntry = errors.New("duplicate entry")
)

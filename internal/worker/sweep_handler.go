package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/service"
)

// PartySweepHandler 处理周期性的过期队伍清扫任务。
// 加入路径已经惰性过滤过期队伍，清扫只负责把 is_active 标记
// 和 Redis 易失状态收拾干净，晚几分钟没有影响。
type PartySweepHandler struct {
	partyService *service.PartyService
}

// NewPartySweepHandler 创建 Handler 实例
func NewPartySweepHandler(partyService *service.PartyService) *PartySweepHandler {
	if partyService == nil {
		panic("PartyService cannot be nil for PartySweepHandler")
	}
	return &PartySweepHandler{partyService: partyService}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PartySweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})
	logCtx.Info("Processing party expire sweep task...")

	// 带超时的 context，避免数据库抖动时任务卡死
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	swept, err := h.partyService.SweepExpired(sweepCtx)
	if err != nil {
		logCtx.WithError(err).Error("Party expire sweep failed")
		return err // 交给 Asynq 按退避策略重试
	}

	logCtx.WithField("swept", swept).Info("Party expire sweep task completed")
	return nil
}

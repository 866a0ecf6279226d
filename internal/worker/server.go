// Package worker 封装 Asynq 后台任务的服务端：任务处理器注册、
// 周期调度和优雅关闭。
package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/service"
	"github.com/SwiftAkira/SpeedLink/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server       *asynq.Server
	scheduler    *asynq.Scheduler
	log          *logrus.Entry
	partyService *service.PartyService
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, partyService *service.PartyService, logger *logrus.Logger) *WorkerServer {
	if partyService == nil {
		panic("PartyService cannot be nil for WorkerServer")
	}
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10, // 可以从配置读取
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := ""
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})

	return &WorkerServer{
		server:       server,
		scheduler:    scheduler,
		log:          logEntry,
		partyService: partyService,
	}
}

// Start 运行 Worker Server 和周期调度器。
// 它应该在单独的 goroutine 中调用。
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()

	// 注册任务处理器
	sweepHandler := NewPartySweepHandler(ws.partyService)
	mux.HandleFunc(tasks.TypePartyExpireSweep, sweepHandler.ProcessTask)

	// 周期任务：每 5 分钟清扫一次过期队伍
	if _, err := ws.scheduler.Register("@every 5m", tasks.NewPartyExpireSweepTask()); err != nil {
		ws.log.Fatalf("Could not register party sweep schedule: %v", err)
	}
	go func() {
		if err := ws.scheduler.Run(); err != nil {
			ws.log.Errorf("Scheduler stopped with error: %v", err)
		}
	}()

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		// 检查是否是正常关闭错误
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server 和调度器
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}

package task

import (
	"context"
	"time"

	"github.com/haierkeys/contact-identity-service/pkg/logger"
	"github.com/haierkeys/contact-identity-service/pkg/safe_close"

	"go.uber.org/zap"
)

// Task 定义任务接口
type Task interface {
	Name() string                  // 任务名称
	Run(ctx context.Context) error // 执行任务
	LoopInterval() time.Duration   // 执行间隔，<= 0 且未实现 Scheduled 时只在启动时执行
	IsStartupRun() bool            // 是否立即执行一次
}

// Scheduled 按表达式计算下次执行时间的任务，优先于 LoopInterval
type Scheduled interface {
	Next(now time.Time) time.Time
}

// Scheduler 任务调度器
type Scheduler struct {
	logger *zap.Logger
	tasks  []Task
	sc     *safe_close.SafeClose
}

// NewScheduler 创建任务调度器
func NewScheduler(logger *zap.Logger, sc *safe_close.SafeClose) *Scheduler {
	return &Scheduler{
		logger: logger,
		tasks:  make([]Task, 0),
		sc:     sc,
	}
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task Task) {
	s.tasks = append(s.tasks, task)
}

// Tasks 已添加的任务
func (s *Scheduler) Tasks() []Task {
	return s.tasks
}

// Start 启动所有任务
func (s *Scheduler) Start() {
	if len(s.tasks) == 0 {
		s.logger.Info("no tasks to schedule")
		return
	}

	s.logger.Info("tasks starting", zap.Int("count", len(s.tasks)))

	for _, task := range s.tasks {
		s.startTask(task)
	}
}

// startTask 启动单个任务，关闭信号到达时取消正在执行的 Run
func (s *Scheduler) startTask(task Task) {

	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-closeSignal:
				cancel()
			case <-ctx.Done():
			}
		}()

		if task.IsStartupRun() {
			s.runOnce(ctx, task, "startupRun")
		}

		next := s.nextFunc(task)
		if next == nil {
			return
		}

		for {
			wait := time.Until(next(time.Now()))
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				s.runOnce(ctx, task, "loopRun")
			case <-closeSignal:
				timer.Stop()
				s.logger.Info("task stopped", zap.String(logger.FieldTask, task.Name()))
				return
			}
		}
	})
}

// nextFunc 返回计算下次执行时间的函数，nil 表示不循环
func (s *Scheduler) nextFunc(task Task) func(time.Time) time.Time {
	if sch, ok := task.(Scheduled); ok {
		return sch.Next
	}
	if interval := task.LoopInterval(); interval > 0 {
		return func(now time.Time) time.Time { return now.Add(interval) }
	}
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, task Task, mode string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panic",
				zap.String(logger.FieldTask, task.Name()),
				zap.String("mode", mode),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	start := time.Now()
	if err := task.Run(ctx); err != nil {
		s.logger.Error("task running error",
			zap.String(logger.FieldTask, task.Name()),
			zap.String("mode", mode),
			zap.Error(err))
		return
	}
	s.logger.Info("task done",
		zap.String(logger.FieldTask, task.Name()),
		zap.String("mode", mode),
		zap.Duration(logger.FieldDuration, time.Since(start)))
}

// Package workerpool 提供 goroutine 生命周期管理的 Worker Pool 实现
// 用于限制并发 goroutine 数量，防止资源泄漏
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// 错误定义
var (
	// ErrWorkerPoolFull 当任务队列已满时返回
	ErrWorkerPoolFull = errors.New("worker pool queue is full")
	// ErrWorkerPoolClosed 当 Worker Pool 已关闭时返回
	ErrWorkerPoolClosed = errors.New("worker pool is closed")
	// ErrTaskCancelled 当任务在执行前被取消时返回
	ErrTaskCancelled = errors.New("task was cancelled")
)

// Config Worker Pool 配置
type Config struct {
	// MaxWorkers 最大并发 worker 数量，默认 8
	MaxWorkers int
	// QueueSize 任务队列大小，默认 256
	QueueSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{MaxWorkers: 8, QueueSize: 256}
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs submitted jobs on a fixed set of workers.
type Pool struct {
	config Config
	logger *zap.Logger

	jobs     chan job
	workerWg sync.WaitGroup
	active   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// New 创建新的 Worker Pool
// cfg 为 nil 时使用默认配置，logger 为 nil 时使用 nop logger
func New(cfg *Config, logger *zap.Logger) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.MaxWorkers > 0 {
			c.MaxWorkers = cfg.MaxWorkers
		}
		if cfg.QueueSize > 0 {
			c.QueueSize = cfg.QueueSize
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: c,
		logger: logger,
		jobs:   make(chan job, c.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < c.MaxWorkers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}

	p.logger.Info("worker pool started",
		zap.Int("maxWorkers", c.MaxWorkers),
		zap.Int("queueSize", c.QueueSize))
	return p
}

func (p *Pool) worker() {
	defer p.workerWg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	var err error
	if j.ctx.Err() != nil {
		err = ErrTaskCancelled
	} else {
		err = j.fn(j.ctx)
	}
	if j.done != nil {
		j.done <- err
	}
}

func (p *Pool) enqueue(j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		return ErrWorkerPoolFull
	}
}

// Submit 提交任务并等待完成
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	if err := p.enqueue(job{ctx: ctx, fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrWorkerPoolClosed
	}
}

// SubmitAsync 异步提交任务（不等待结果）
func (p *Pool) SubmitAsync(ctx context.Context, fn func(context.Context) error) error {
	return p.enqueue(job{ctx: ctx, fn: fn})
}

// Each runs fn for every item on the pool and waits for all of them.
// Errors are joined; a full queue runs the item on the caller's goroutine.
// Each 在池中并发处理 items，队列满时在调用方协程中执行
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) error) error {
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		done := make(chan error, 1)
		err := p.enqueue(job{ctx: ctx, fn: func(ctx context.Context) error { return fn(ctx, item) }, done: done})
		if errors.Is(err, ErrWorkerPoolFull) {
			errs[i] = fn(ctx, item)
			wg.Done()
			continue
		}
		if err != nil {
			errs[i] = err
			wg.Done()
			continue
		}
		go func(i int) {
			defer wg.Done()
			select {
			case errs[i] = <-done:
			case <-p.ctx.Done():
				errs[i] = ErrWorkerPoolClosed
			}
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ActiveCount 返回当前活跃任务数
func (p *Pool) ActiveCount() int64 {
	return p.active.Load()
}

// IsClosed 返回 Worker Pool 是否已关闭
func (p *Pool) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Shutdown 关闭 Worker Pool，等待已入队任务完成
// ctx 用于控制关闭超时
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("worker pool shutting down",
		zap.Int64("activeCount", p.active.Load()),
		zap.Int("queuedCount", len(p.jobs)))

	done := make(chan struct{})
	go func() {
		p.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool shutdown completed")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("worker pool shutdown timeout, forcing cancellation")
		return ctx.Err()
	}
}

// Metrics Worker Pool 指标
type Metrics struct {
	MaxWorkers    int
	ActiveCount   int64
	QueuedCount   int
	QueueCapacity int
	IsClosed      bool
}

// GetMetrics 获取当前指标
func (p *Pool) GetMetrics() Metrics {
	return Metrics{
		MaxWorkers:    p.config.MaxWorkers,
		ActiveCount:   p.active.Load(),
		QueuedCount:   len(p.jobs),
		QueueCapacity: p.config.QueueSize,
		IsClosed:      p.IsClosed(),
	}
}

// Package writequeue serializes write operations per lane.
// Package writequeue 按通道（lane）串行化写操作
//
// Every lane owns one worker goroutine that runs submitted functions in FIFO order,
// so two operations on the same lane never overlap. Idle lanes are reaped.
package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Error definitions
// 错误定义
var (
	// ErrWriteQueueFull 当写队列已满时返回
	ErrWriteQueueFull = errors.New("write queue is full")
	// ErrWriteQueueClosed 当写队列管理器已关闭时返回
	ErrWriteQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout 当写操作超时时返回
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config write queue configuration
// Config 写队列配置
type Config struct {
	// QueueCapacity 每个通道的队列容量，默认 100
	QueueCapacity int
	// WriteTimeout 等待写操作完成的超时时间，默认 30 秒
	WriteTimeout time.Duration
	// IdleTimeout 空闲通道回收时间，默认 10 分钟
	IdleTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 100,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   10 * time.Minute,
	}
}

// op states
const (
	opQueued int32 = iota
	opRunning
	opAbandoned
)

type opResult struct {
	value any
	err   error
}

type writeOp struct {
	ctx    context.Context
	fn     func() (any, error)
	result chan opResult
	state  *atomic.Int32
}

// start moves a queued op to running; false means the caller already gave up on it.
func (op writeOp) start() bool {
	return op.state.CompareAndSwap(opQueued, opRunning)
}

// abandon marks a queued op so the worker skips it; false means it is already running.
func (op writeOp) abandon() bool {
	return op.state.CompareAndSwap(opQueued, opAbandoned)
}

type lane struct {
	key      string
	ch       chan writeOp
	lastUsed atomic.Int64
	// pending 已入队但尚未执行完的操作数
	pending  atomic.Int64
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func (l *lane) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Manager owns all lanes
// Manager 管理所有写通道
type Manager struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	cleanupWg sync.WaitGroup
}

// New creates a manager; nil cfg uses defaults, nil logger uses a nop logger.
func New(cfg *Config, logger *zap.Logger) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.QueueCapacity > 0 {
			c.QueueCapacity = cfg.QueueCapacity
		}
		if cfg.WriteTimeout > 0 {
			c.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.IdleTimeout > 0 {
			c.IdleTimeout = cfg.IdleTimeout
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config: c,
		logger: logger,
		lanes:  make(map[string]*lane),
		ctx:    ctx,
		cancel: cancel,
	}

	m.cleanupWg.Add(1)
	go m.cleanupIdleLanes()

	m.logger.Info("write queue manager started",
		zap.Int("queueCapacity", c.QueueCapacity),
		zap.Duration("writeTimeout", c.WriteTimeout),
		zap.Duration("idleTimeout", c.IdleTimeout))

	return m
}

// Execute runs fn on the lane named key and waits for its result.
// Execute 在指定通道上串行执行 fn 并等待结果
func (m *Manager) Execute(ctx context.Context, key string, fn func() error) error {
	_, err := m.Submit(ctx, key, func() (any, error) {
		return nil, fn()
	})
	return err
}

// Submit runs fn on the lane named key and returns the value fn produced.
// An error from the queue itself (full, timeout, ctx done, closed) means fn never ran.
// Once fn has started, Submit waits for it and returns its result.
// Submit 入队执行 fn；一旦 fn 开始执行就等待其完成，不会在执行中途返回
func (m *Manager) Submit(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrWriteQueueClosed
	}
	l := m.laneLocked(key)
	l.lastUsed.Store(time.Now().UnixNano())

	op := writeOp{ctx: ctx, fn: fn, result: make(chan opResult, 1), state: new(atomic.Int32)}
	select {
	case l.ch <- op:
		l.pending.Add(1)
	default:
		m.mu.Unlock()
		return nil, ErrWriteQueueFull
	}
	m.mu.Unlock()

	timeout := m.config.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var giveUp error
	select {
	case r := <-op.result:
		return r.value, r.err
	case <-ctx.Done():
		giveUp = ctx.Err()
	case <-timer.C:
		giveUp = ErrWriteTimeout
	case <-m.ctx.Done():
		giveUp = ErrWriteQueueClosed
	}
	if op.abandon() {
		return nil, giveUp
	}
	// 已开始执行，fn 的结果才是最终结果
	r := <-op.result
	return r.value, r.err
}

// Submitter is implemented by Manager.
type Submitter interface {
	Submit(ctx context.Context, key string, fn func() (any, error)) (any, error)
}

// Do is the typed form of Submit.
// Do 泛型版本的 Submit，结果随操作返回
func Do[T any](ctx context.Context, s Submitter, key string, fn func() (T, error)) (T, error) {
	var zero T
	v, err := s.Submit(ctx, key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}

// laneLocked returns the lane for key, starting its worker on first use. m.mu must be held.
func (m *Manager) laneLocked(key string) *lane {
	if l, ok := m.lanes[key]; ok {
		return l
	}
	l := &lane{
		key:    key,
		ch:     make(chan writeOp, m.config.QueueCapacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.lanes[key] = l
	go m.worker(l)

	m.logger.Debug("created write lane", zap.String("lane", key))
	return l
}

func (m *Manager) worker(l *lane) {
	defer close(l.done)
	for {
		select {
		case <-l.stopCh:
			m.drain(l)
			return
		case op := <-l.ch:
			m.run(l, op)
		}
	}
}

func (m *Manager) run(l *lane, op writeOp) {
	l.lastUsed.Store(time.Now().UnixNano())
	if !op.start() {
		l.pending.Add(-1)
		return
	}
	r := opResult{err: op.ctx.Err()}
	if r.err == nil {
		r.value, r.err = op.fn()
	}
	// 先释放计数再回传结果，调用方返回时通道已可回收
	l.lastUsed.Store(time.Now().UnixNano())
	l.pending.Add(-1)
	op.result <- r
}

func (m *Manager) drain(l *lane) {
	for {
		select {
		case op := <-l.ch:
			m.run(l, op)
		default:
			return
		}
	}
}

func (m *Manager) cleanupIdleLanes() {
	defer m.cleanupWg.Done()

	ticker := time.NewTicker(m.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle(time.Now())
		}
	}
}

// reapIdle stops lanes with nothing queued or running that were unused for longer than IdleTimeout.
func (m *Manager) reapIdle(now time.Time) {
	threshold := m.config.IdleTimeout.Nanoseconds()

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, l := range m.lanes {
		if now.UnixNano()-l.lastUsed.Load() > threshold && l.pending.Load() == 0 {
			m.logger.Debug("cleaning up idle write lane", zap.String("lane", key))
			l.stop()
			delete(m.lanes, key)
		}
	}
}

// Shutdown stops accepting work, drains every lane and waits until ctx expires.
// Shutdown 关闭写队列管理器，排空所有通道
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	lanes := make([]*lane, 0, len(m.lanes))
	for _, l := range m.lanes {
		l.stop()
		lanes = append(lanes, l)
	}
	m.mu.Unlock()

	m.logger.Info("write queue manager shutting down", zap.Int("lanes", len(lanes)))

	done := make(chan struct{})
	go func() {
		for _, l := range lanes {
			<-l.done
		}
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		m.cleanupWg.Wait()
		m.logger.Info("write queue manager shutdown completed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue manager shutdown timeout, forcing cancellation")
		m.cancel()
		return ctx.Err()
	}
}

// LaneCount returns the number of live lanes
func (m *Manager) LaneCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lanes)
}

// IsClosed returns if manager is closed
func (m *Manager) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

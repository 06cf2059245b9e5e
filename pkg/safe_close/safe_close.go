// Package safe_close coordinates shutdown of long running goroutines.
// Package safe_close 协调长期运行 goroutine 的关闭
package safe_close

import (
	"sync"
)

// SafeClose broadcasts one close signal to every attached goroutine and waits for them.
type SafeClose struct {
	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

func NewSafeClose() *SafeClose {
	return &SafeClose{closeCh: make(chan struct{})}
}

// Attach runs fn in its own goroutine. fn must call done when it returns.
// Attach 启动 fn，fn 结束时必须调用 done
func (s *SafeClose) Attach(fn func(done func(), closeSignal <-chan struct{})) {
	s.wg.Add(1)
	go fn(s.wg.Done, s.closeCh)
}

// SendCloseSignal closes the signal channel; only the first err is kept.
func (s *SafeClose) SendCloseSignal(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.closeCh)
	})
}

// CloseSignal exposes the close channel for goroutines not started by Attach.
func (s *SafeClose) CloseSignal() <-chan struct{} {
	return s.closeCh
}

// WaitClosed blocks until every attached goroutine returned and reports the first close error.
func (s *SafeClose) WaitClosed() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

package eventbridge

import (
	"context"
	"sync"
)

// fakeBus is an in-memory Connector. It reports ErrNotReady until setReady.
type fakeBus struct {
	mu    sync.Mutex
	ready bool
	subs  map[string][]*fakeSub
	tries map[string]int
}

type fakeSub struct {
	ch   chan BusMessage
	once sync.Once
}

func (s *fakeSub) Messages() <-chan BusMessage { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

func newFakeBus(ready bool) *fakeBus {
	return &fakeBus{ready: ready, subs: make(map[string][]*fakeSub), tries: make(map[string]int)}
}

func (f *fakeBus) setReady(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = v
}

func (f *fakeBus) Conn(context.Context) (BusConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return nil, ErrNotReady
	}
	return f, nil
}

func (f *fakeBus) Subscribe(_ context.Context, pattern string) (BusSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tries[pattern]++
	s := &fakeSub{ch: make(chan BusMessage, 16)}
	f.subs[pattern] = append(f.subs[pattern], s)
	return s, nil
}

// send delivers data to the latest subscription of pattern.
func (f *fakeBus) send(pattern, subject string, data string) bool {
	f.mu.Lock()
	subs := f.subs[pattern]
	f.mu.Unlock()
	if len(subs) == 0 {
		return false
	}
	subs[len(subs)-1].ch <- BusMessage{Subject: subject, Data: []byte(data)}
	return true
}

// drop ends the latest subscription of pattern as if the connection was lost.
func (f *fakeBus) drop(pattern string) {
	f.mu.Lock()
	subs := f.subs[pattern]
	f.mu.Unlock()
	if len(subs) > 0 {
		_ = subs[len(subs)-1].Close()
	}
}

func (f *fakeBus) subscriptions(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tries[pattern]
}

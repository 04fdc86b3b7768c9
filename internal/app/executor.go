package app

import (
	"sync"

	"github.com/gammazero/channelqueue"
)

// Executor runs callbacks on a particular execution context
type Executor interface {
	Execute(f func())
}

type inlineExecutor struct{}

func (inlineExecutor) Execute(f func()) {
	f()
}

// Runs callbacks on the goroutine that completed the load
var InlineExecutor Executor = inlineExecutor{}

// SerialExecutor runs callbacks one at a time, in submission order, on a single
// dedicated goroutine. Execute never blocks.
type SerialExecutor struct {
	queue *channelqueue.ChannelQueue[func()]
	done  chan struct{}

	closeLock sync.RWMutex
	closed    bool
}

func NewSerialExecutor() *SerialExecutor {
	s := &SerialExecutor{
		queue: channelqueue.New[func()](-1),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *SerialExecutor) run() {
	defer close(s.done)
	for f := range s.queue.Out() {
		f()
	}
}

func (s *SerialExecutor) Execute(f func()) {
	s.closeLock.RLock()
	defer s.closeLock.RUnlock()

	if s.closed {
		panic("Execute called on a closed SerialExecutor")
	}
	s.queue.In() <- f
}

// Close stops accepting callbacks and waits for the queued ones to run.
//
// Must not be called from a callback running on this executor.
func (s *SerialExecutor) Close() {
	s.closeLock.Lock()
	if !s.closed {
		s.closed = true
		s.queue.Close()
	}
	s.closeLock.Unlock()

	<-s.done
}

package store

import (
	"sync"

	"go.uber.org/zap"
)

// supervisor tracks the goroutines running effects.
// - Each routine is joined on shutdown through the WaitGroup.
// - Panics are recovered and logged per routine, so one failing effect never takes the store down.
type supervisor struct {
	wg     sync.WaitGroup
	logger *zap.Logger
}

// spawn starts fn in its own goroutine and returns once it is running.
func (s *supervisor) spawn(name string, fn func()) {
	s.wg.Add(1)
	ready := make(chan struct{})
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in effect routine",
					zap.String("effect", name),
					zap.Any("error", r),
				)
			}
		}()
		close(ready)
		fn()
	}()
	<-ready
}

// wait blocks until every spawned routine has returned.
func (s *supervisor) wait() {
	s.logger.Debug("waiting for effect routines to finish")
	s.wg.Wait()
	s.logger.Debug("all effect routines finished")
}

package launcher

import (
	"fmt"
	"sync"

	"github.com/mainlaunch/mainlaunch/framework"
)

type shutdownTask struct {
	name string
	fn   func() error
}

// ShutdownTasks is an ordered queue of cleanup actions. Tasks can be added from any goroutine;
// the queue is drained once, at the end of a test class.
type ShutdownTasks struct {
	tasks []shutdownTask
	lock  sync.Mutex
}

// Add appends a task. The name is only used when logging a failure.
func (s *ShutdownTasks) Add(name string, fn func() error) {
	s.lock.Lock()
	s.tasks = append(s.tasks, shutdownTask{name, fn})
	s.lock.Unlock()
}

func (s *ShutdownTasks) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.tasks)
}

// Drain runs every queued task in the order it was added and empties the queue. A task that
// fails or panics is logged and the remaining tasks still run. It returns the number of tasks
// that ran.
func (s *ShutdownTasks) Drain(logger framework.Logger) int {
	s.lock.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.lock.Unlock()

	logger = framework.OrNullLogger(logger)
	for _, t := range tasks {
		if err := runTask(t.fn); err != nil {
			logger.Printf("Shutdown task %q failed: %s", t.name, err)
		}
	}
	return len(tasks)
}

func runTask(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

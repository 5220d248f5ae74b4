package task

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

type task struct {
	function    func()
	interval    time.Duration
	name        string
	stopChannel chan struct{}
}

// BackgroundTaskManager runs functions periodically until stopped. It is not threadsafe, it should only be
// accessed from a single goroutine.
type BackgroundTaskManager struct {
	tasks []*task
	clock clock.Clock
	wg    sync.WaitGroup
}

func NewBackgroundTaskManager(clock clock.Clock) *BackgroundTaskManager {
	return &BackgroundTaskManager{clock: clock}
}

// Register starts calling backgroundTask every interval, the first call happening one interval from now.
func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, name string) {
	t := &task{
		function:    backgroundTask,
		interval:    interval,
		name:        name,
		stopChannel: make(chan struct{}),
	}
	m.startBackgroundTask(t)
	m.tasks = append(m.tasks, t)
}

// StopAll stops every task and waits up to timeout for running calls to return. It returns true if the
// timeout expired first.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.stopTasks()
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(t *task) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.clock.After(t.interval):
			case <-t.stopChannel:
				log.Debugf("Background task %s stopped", t.name)
				return
			}
			t.function()
		}
	}()
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false
	case <-time.After(timeout):
		return true
	}
}

func (m *BackgroundTaskManager) stopTasks() {
	for _, t := range m.tasks {
		close(t.stopChannel)
	}
	m.tasks = nil
}

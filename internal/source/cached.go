package source

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mwaldrip/foreman/pkg/models"
)

// FileBacked is a task source whose tasks come from a single file.
type FileBacked interface {
	TaskSource
	Path() string
}

// CachedSource memoizes a file-backed source's parse and invalidates
// the cache when the backing file changes on disk. The orchestrator
// polls ReadyTasks every loop iteration; without the cache that is a
// full reparse per poll.
type CachedSource struct {
	inner   FileBacked
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	tasks []models.Task
	valid bool
}

// NewCachedSource wraps a file-backed source with a change-watching
// cache. Callers must Close it when the run ends.
func NewCachedSource(inner FileBacked) (*CachedSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(inner.Path()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", inner.Path(), err)
	}

	c := &CachedSource{inner: inner, watcher: watcher}
	go c.watch()
	return c, nil
}

func (c *CachedSource) watch() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				c.Invalidate()
			}
		case _, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			// A watch error means we can no longer trust the cache.
			c.Invalidate()
		}
	}
}

// Invalidate drops the cached parse; the next read reparses the file.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// Close stops the file watcher.
func (c *CachedSource) Close() error {
	return c.watcher.Close()
}

func (c *CachedSource) SourceName() string {
	if named, ok := c.inner.(Named); ok {
		return named.SourceName()
	}
	return "cached"
}

func (c *CachedSource) Path() string { return c.inner.Path() }

func (c *CachedSource) Tasks() ([]models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid {
		return append([]models.Task{}, c.tasks...), nil
	}
	tasks, err := c.inner.Tasks()
	if err != nil {
		return nil, err
	}
	c.tasks = tasks
	c.valid = true
	return append([]models.Task{}, tasks...), nil
}

func (c *CachedSource) ReadyTasks() ([]models.Task, error) {
	tasks, err := c.Tasks()
	if err != nil {
		return nil, err
	}
	return readyOf(tasks), nil
}

// UpdateStatus writes through to the backing source and drops the
// cache, since the write changed the file under us.
func (c *CachedSource) UpdateStatus(taskID string, status models.TaskStatus) error {
	err := c.inner.UpdateStatus(taskID, status)
	c.Invalidate()
	return err
}

func (c *CachedSource) ClaimTask(taskID string) (bool, error) {
	return c.inner.ClaimTask(taskID)
}

var _ TaskSource = (*CachedSource)(nil)

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TaskState describes the lifecycle state of a supervised loop.
type TaskState string

const (
	TaskStateRunning    TaskState = "running"
	TaskStateRestarting TaskState = "restarting"
	TaskStateCompleted  TaskState = "completed"
	TaskStateCanceled   TaskState = "canceled"
)

// TaskStatus captures the latest snapshot for a supervised loop.
type TaskStatus struct {
	Name          string    `json:"name"`
	State         TaskState `json:"state"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Restarts      int       `json:"restarts"`
	LastError     string    `json:"last_error"`
	Stalled       bool      `json:"stalled"`
}

// TaskFunc is one run of a supervised loop. Returning nil ends supervision,
// returning an error (or panicking) schedules a restart.
type TaskFunc func(ctx context.Context, hb Heartbeat) error

// Heartbeat is used by supervised loops to report progress.
type Heartbeat interface {
	Tick()
}

// Logger is the subset of a logrus logger the monitor writes to.
type Logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

type Option func(*Monitor)

// WithBackoff sets the delay before the first restart and its cap. The delay
// doubles on each consecutive failure.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(m *Monitor) {
		m.initialBackoff = initial
		m.maxBackoff = maxDelay
	}
}

// WithStallThreshold overrides the duration allowed between heartbeats before
// a loop is reported as stalled.
func WithStallThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		m.stallThreshold = d
	}
}

// WithCheckInterval adjusts how often the watchdog inspects loops.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.checkInterval = d
	}
}

func WithLogger(l Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor supervises long-running loops, restarting them with backoff when
// they fail and flagging loops that stop sending heartbeats.
type Monitor struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	tasks map[string]*taskRecord
	wg    sync.WaitGroup

	initialBackoff time.Duration
	maxBackoff     time.Duration
	stallThreshold time.Duration
	checkInterval  time.Duration
	logger         Logger
}

func New(logger Logger, opts ...Option) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		ctx:            ctx,
		cancel:         cancel,
		tasks:          make(map[string]*taskRecord),
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
		checkInterval:  5 * time.Second,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.checkInterval > 0 && m.stallThreshold > 0 {
		go m.watchdog()
	}
	return m
}

// TaskHandle exposes limited control over a supervised loop.
type TaskHandle struct {
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
	mon    *Monitor
}

// Stop cancels the loop context. No further restarts happen.
func (h TaskHandle) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Done is closed once the loop exited for good.
func (h TaskHandle) Done() <-chan struct{} {
	return h.done
}

func (h TaskHandle) Status() TaskStatus {
	return h.mon.taskStatus(h.Name)
}

// Supervise runs fn under ctx and restarts it with exponential backoff every
// time it fails, until ctx is done, the handle is stopped or fn returns nil.
func (m *Monitor) Supervise(ctx context.Context, name string, fn TaskFunc) TaskHandle {
	taskCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-m.ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	record := newTaskRecord(name)
	m.mu.Lock()
	m.tasks[name] = record
	m.mu.Unlock()

	done := make(chan struct{})
	hb := &heartbeat{task: record}

	m.wg.Add(1)
	go func() {
		defer close(done)
		defer m.wg.Done()
		defer cancel()

		backoff := m.initialBackoff
		for {
			started := time.Now()
			err := m.runOnce(taskCtx, fn, hb)
			if taskCtx.Err() != nil {
				record.markCanceled()
				return
			}
			if err == nil {
				record.markCompleted()
				return
			}

			// A run that lasted longer than the cap proved healthy for a
			// while, so the next failure starts from the initial delay.
			if time.Since(started) > m.maxBackoff {
				backoff = m.initialBackoff
			}
			restarts := record.markRestarting(err)
			m.logger.Warnf(
				"monitor: %s failed (restart %d in %s): %v", name, restarts, backoff, err,
			)

			select {
			case <-taskCtx.Done():
				record.markCanceled()
				return
			case <-time.After(backoff):
			}
			record.markRunning()

			backoff *= 2
			if backoff > m.maxBackoff {
				backoff = m.maxBackoff
			}
		}
	}()

	return TaskHandle{
		Name:   name,
		cancel: cancel,
		done:   done,
		mon:    m,
	}
}

// Snapshot returns the status of every loop, sorted by name.
func (m *Monitor) Snapshot() []TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]TaskStatus, 0, len(m.tasks))
	for _, task := range m.tasks {
		statuses = append(statuses, task.status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// Stop cancels all loops and waits for them to exit.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) runOnce(ctx context.Context, fn TaskFunc, hb Heartbeat) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = fn(ctx, hb)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Monitor) taskStatus(name string) TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if task, ok := m.tasks[name]; ok {
		return task.status()
	}
	return TaskStatus{Name: name}
}

func (m *Monitor) watchdog() {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.inspectTasks()
		}
	}
}

func (m *Monitor) inspectTasks() {
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, task := range m.tasks {
		task.mu.Lock()
		if task.state == TaskStateRunning {
			since := now.Sub(task.lastHeartbeat)
			if since > m.stallThreshold {
				if !task.stalled {
					task.stalled = true
					m.logger.Warnf(
						"monitor: %s stalled (%s without heartbeat)", task.name, since.Truncate(time.Millisecond),
					)
				}
			} else if task.stalled {
				task.stalled = false
				m.logger.Infof("monitor: %s recovered after stall", task.name)
			}
		}
		task.mu.Unlock()
	}
}

type heartbeat struct {
	task *taskRecord
}

func (h *heartbeat) Tick() {
	h.task.touch()
}

type taskRecord struct {
	mu            sync.Mutex
	name          string
	start         time.Time
	end           time.Time
	lastHeartbeat time.Time
	state         TaskState
	restarts      int
	lastErr       string
	stalled       bool
}

func newTaskRecord(name string) *taskRecord {
	now := time.Now()
	return &taskRecord{
		name:          name,
		start:         now,
		lastHeartbeat: now,
		state:         TaskStateRunning,
	}
}

func (t *taskRecord) touch() {
	t.mu.Lock()
	t.lastHeartbeat = time.Now()
	t.mu.Unlock()
}

func (t *taskRecord) markRestarting(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = TaskStateRestarting
	t.restarts++
	t.lastErr = err.Error()
	t.stalled = false
	return t.restarts
}

func (t *taskRecord) markRunning() {
	t.mu.Lock()
	t.state = TaskStateRunning
	t.lastHeartbeat = time.Now()
	t.mu.Unlock()
}

func (t *taskRecord) markCompleted() {
	t.mu.Lock()
	t.state = TaskStateCompleted
	t.end = time.Now()
	t.mu.Unlock()
}

func (t *taskRecord) markCanceled() {
	t.mu.Lock()
	t.state = TaskStateCanceled
	t.end = time.Now()
	t.mu.Unlock()
}

func (t *taskRecord) status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskStatus{
		Name:          t.name,
		State:         t.state,
		StartTime:     t.start,
		EndTime:       t.end,
		LastHeartbeat: t.lastHeartbeat,
		Restarts:      t.restarts,
		LastError:     t.lastErr,
		Stalled:       t.stalled,
	}
}

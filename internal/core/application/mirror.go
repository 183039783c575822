package application

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	refreshKindTasks   = "tasks"
	refreshKindBalance = "balance"

	// maxTaskCount bounds a single refresh. A counter above it is treated as
	// a malformed response.
	maxTaskCount = 1 << 20
)

// TaskSnapshot is an immutable view of the visible task set. Stale means the
// latest refresh attempt failed and Tasks reflects an older read.
type TaskSnapshot struct {
	Tasks     []domain.Task
	NextID    uint64
	Loaded    bool
	Stale     bool
	Err       error
	UpdatedAt time.Time
}

// Task returns the visible task with the given id.
func (s TaskSnapshot) Task(id uint64) (domain.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// BalanceSnapshot is the withdrawable balance of the connected account. A nil
// Amount means unknown, never zero.
type BalanceSnapshot struct {
	Account   common.Address
	Amount    *big.Int
	Loaded    bool
	Stale     bool
	Err       error
	UpdatedAt time.Time
}

type MirrorConfig struct {
	MaxConcurrentReads int
	ReadsPerSecond     int
}

// refreshState tracks ordering for one kind of refresh. Sequence numbers are
// issued when a refresh starts; only results newer than the applied data are
// kept.
type refreshState struct {
	issued    uint64
	dataSeq   uint64
	failedSeq uint64
	inflight  int
	idle      chan struct{}
}

func (r *refreshState) begin() uint64 {
	if r.inflight == 0 {
		r.idle = make(chan struct{})
	}
	r.inflight++
	r.issued++
	return r.issued
}

func (r *refreshState) end() {
	r.inflight--
	if r.inflight == 0 {
		close(r.idle)
	}
}

func (r *refreshState) wait() <-chan struct{} {
	if r.inflight == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.idle
}

// Mirror is the single writer of task and balance state. Readers only ever
// get copies.
type Mirror struct {
	reader        ports.ContractReader
	limiter       *rate.Limiter
	maxConcurrent int
	clock         clockwork.Clock

	lock    sync.RWMutex
	epoch   uint64
	account common.Address
	tasks   TaskSnapshot
	balance BalanceSnapshot
	taskRef refreshState
	balRef  refreshState
	subs    map[chan struct{}]struct{}
}

func NewMirror(reader ports.ContractReader, config MirrorConfig, clock clockwork.Clock) *Mirror {
	if config.MaxConcurrentReads <= 0 {
		config.MaxConcurrentReads = 16
	}
	limit := rate.Inf
	burst := config.MaxConcurrentReads
	if config.ReadsPerSecond > 0 {
		limit = rate.Limit(config.ReadsPerSecond)
		burst = max(config.ReadsPerSecond, 1)
	}
	return &Mirror{
		reader:        reader,
		limiter:       rate.NewLimiter(limit, burst),
		maxConcurrent: config.MaxConcurrentReads,
		clock:         clock,
		subs:          make(map[chan struct{}]struct{}),
	}
}

func (m *Mirror) Tasks() TaskSnapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return cloneTaskSnapshot(m.tasks)
}

func (m *Mirror) Balance() BalanceSnapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return cloneBalanceSnapshot(m.balance)
}

func (m *Mirror) Account() common.Address {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.account
}

// Ready reports whether the task set holds a successful, non-stale read.
func (m *Mirror) Ready() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.tasks.Loaded && !m.tasks.Stale
}

// Reset drops every mirrored record and invalidates refreshes still in
// flight: their results are discarded when they land.
func (m *Mirror) Reset() {
	m.lock.Lock()
	m.epoch++
	m.account = common.Address{}
	m.tasks = TaskSnapshot{}
	m.balance = BalanceSnapshot{}
	m.lock.Unlock()

	log.Debug("ledger mirror reset")
	m.notify()
}

// SetAccount scopes the balance to account, dropping the previous account's
// balance.
func (m *Mirror) SetAccount(account common.Address) {
	m.lock.Lock()
	m.epoch++
	m.account = account
	m.balance = BalanceSnapshot{Account: account}
	m.lock.Unlock()

	m.notify()
}

// Subscribe returns a channel signalled after every snapshot change. Signals
// coalesce, so a slow reader sees one pending notification at most.
func (m *Mirror) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	m.lock.Lock()
	m.subs[ch] = struct{}{}
	m.lock.Unlock()

	go func() {
		<-ctx.Done()
		m.lock.Lock()
		delete(m.subs, ch)
		m.lock.Unlock()
	}()
	return ch
}

// RefreshTasks re-reads the whole task table. Any single read failure fails
// the refresh and marks the current snapshot stale instead of shrinking it.
func (m *Mirror) RefreshTasks(ctx context.Context) (TaskSnapshot, error) {
	m.lock.Lock()
	seq := m.taskRef.begin()
	epoch := m.epoch
	m.lock.Unlock()

	start := m.clock.Now()
	tasks, next, err := m.readTasks(ctx)

	m.lock.Lock()
	applied, changed := m.applyTasks(seq, epoch, tasks, next, err)
	m.taskRef.end()
	snapshot := cloneTaskSnapshot(m.tasks)
	m.lock.Unlock()

	if !applied {
		metrics.RecordDiscardedRefresh(refreshKindTasks)
		log.WithField("seq", seq).Debug("discarded superseded task refresh")
	} else {
		metrics.RecordRefresh(refreshKindTasks, m.clock.Since(start), err)
		if err == nil {
			metrics.MirrorVisibleTasks.Set(float64(len(snapshot.Tasks)))
		}
	}
	if err != nil {
		log.WithError(err).Warn("task refresh failed, snapshot marked stale")
	}
	if changed {
		m.notify()
	}
	return snapshot, err
}

// RefreshBalance re-reads the withdrawable balance of the current account.
func (m *Mirror) RefreshBalance(ctx context.Context) (BalanceSnapshot, error) {
	m.lock.Lock()
	account := m.account
	if account == (common.Address{}) {
		m.lock.Unlock()
		return BalanceSnapshot{}, domain.ErrNotConnected
	}
	seq := m.balRef.begin()
	epoch := m.epoch
	m.lock.Unlock()

	start := m.clock.Now()
	amount, err := m.readBalance(ctx, account)

	m.lock.Lock()
	applied, changed := m.applyBalance(seq, epoch, amount, err)
	m.balRef.end()
	snapshot := cloneBalanceSnapshot(m.balance)
	m.lock.Unlock()

	if !applied {
		metrics.RecordDiscardedRefresh(refreshKindBalance)
		log.WithField("seq", seq).Debug("discarded superseded balance refresh")
	} else {
		metrics.RecordRefresh(refreshKindBalance, m.clock.Since(start), err)
	}
	if err != nil {
		log.WithError(err).Warn("balance refresh failed, snapshot marked stale")
	}
	if changed {
		m.notify()
	}
	return snapshot, err
}

// FreshTasks waits for in-flight task refreshes to land and refreshes again
// when the result is stale or missing. Guards validate against its result.
func (m *Mirror) FreshTasks(ctx context.Context) (TaskSnapshot, error) {
	if err := m.settle(ctx, &m.taskRef); err != nil {
		return TaskSnapshot{}, err
	}
	snapshot := m.Tasks()
	if snapshot.Loaded && !snapshot.Stale {
		return snapshot, nil
	}
	snapshot, err := m.RefreshTasks(ctx)
	if err != nil {
		return TaskSnapshot{}, err
	}
	if !snapshot.Loaded || snapshot.Stale {
		return TaskSnapshot{}, domain.NewReadError("tasks", snapshot.Err)
	}
	return snapshot, nil
}

// FreshBalance is the balance counterpart of FreshTasks.
func (m *Mirror) FreshBalance(ctx context.Context) (BalanceSnapshot, error) {
	if err := m.settle(ctx, &m.balRef); err != nil {
		return BalanceSnapshot{}, err
	}
	snapshot := m.Balance()
	if snapshot.Loaded && !snapshot.Stale {
		return snapshot, nil
	}
	snapshot, err := m.RefreshBalance(ctx)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	if !snapshot.Loaded || snapshot.Stale {
		return BalanceSnapshot{}, domain.NewReadError("balance", snapshot.Err)
	}
	return snapshot, nil
}

func (m *Mirror) settle(ctx context.Context, ref *refreshState) error {
	m.lock.RLock()
	idle := ref.wait()
	m.lock.RUnlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mirror) readTasks(ctx context.Context) ([]domain.Task, uint64, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, 0, domain.NewReadError("next task id", err)
	}
	next, err := m.reader.NextTaskID(ctx)
	if err != nil {
		return nil, 0, err
	}
	if next == 0 {
		return []domain.Task{}, 0, nil
	}
	if next > maxTaskCount {
		return nil, 0, domain.NewReadError(
			"next task id", fmt.Errorf("implausible task count %d", next),
		)
	}

	results := make([]*domain.Task, next)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrent)
	for id := uint64(0); id < next; id++ {
		id := id
		g.Go(func() error {
			if err := m.limiter.Wait(gctx); err != nil {
				return domain.NewReadError(fmt.Sprintf("task %d", id), err)
			}
			task, err := m.reader.Task(gctx, id)
			if err != nil {
				return err
			}
			if task == nil || task.ID != id {
				return domain.NewReadError(
					fmt.Sprintf("task %d", id), fmt.Errorf("unexpected task record"),
				)
			}
			results[id] = task
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	visible := make([]domain.Task, 0, len(results))
	for _, task := range results {
		if task.Visible() {
			visible = append(visible, task.Clone())
		}
	}
	return visible, next, nil
}

func (m *Mirror) readBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, domain.NewReadError("balance", err)
	}
	amount, err := m.reader.NativeBalance(ctx, account)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, domain.NewReadError("balance", fmt.Errorf("invalid balance"))
	}
	return new(big.Int).Set(amount), nil
}

// applyTasks must be called with the lock held.
func (m *Mirror) applyTasks(
	seq, epoch uint64, tasks []domain.Task, next uint64, err error,
) (applied, changed bool) {
	ref := &m.taskRef
	if epoch != m.epoch || seq <= ref.dataSeq {
		return false, false
	}

	if err != nil {
		if seq > ref.failedSeq {
			ref.failedSeq = seq
		}
		changed = !m.tasks.Stale
		m.tasks.Stale = true
		m.tasks.Err = err
		return true, changed
	}

	ref.dataSeq = seq
	stale := ref.failedSeq > seq
	changed = !m.tasks.Loaded || m.tasks.NextID != next ||
		m.tasks.Stale != stale || !domain.EqualTasks(m.tasks.Tasks, tasks)

	m.tasks = TaskSnapshot{
		Tasks:     tasks,
		NextID:    next,
		Loaded:    true,
		Stale:     stale,
		UpdatedAt: m.clock.Now(),
	}
	if stale {
		m.tasks.Err = domain.NewReadError("tasks", fmt.Errorf("a newer refresh failed"))
	}
	return true, changed
}

// applyBalance must be called with the lock held.
func (m *Mirror) applyBalance(
	seq, epoch uint64, amount *big.Int, err error,
) (applied, changed bool) {
	ref := &m.balRef
	if epoch != m.epoch || seq <= ref.dataSeq {
		return false, false
	}

	if err != nil {
		if seq > ref.failedSeq {
			ref.failedSeq = seq
		}
		changed = !m.balance.Stale
		m.balance.Stale = true
		m.balance.Err = err
		return true, changed
	}

	ref.dataSeq = seq
	stale := ref.failedSeq > seq
	changed = !m.balance.Loaded || m.balance.Stale != stale ||
		m.balance.Amount == nil || m.balance.Amount.Cmp(amount) != 0

	m.balance = BalanceSnapshot{
		Account:   m.account,
		Amount:    amount,
		Loaded:    true,
		Stale:     stale,
		UpdatedAt: m.clock.Now(),
	}
	return true, changed
}

func (m *Mirror) notify() {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func cloneTaskSnapshot(s TaskSnapshot) TaskSnapshot {
	c := s
	if s.Tasks != nil {
		c.Tasks = make([]domain.Task, len(s.Tasks))
		for i, t := range s.Tasks {
			c.Tasks[i] = t.Clone()
		}
	}
	return c
}

func cloneBalanceSnapshot(s BalanceSnapshot) BalanceSnapshot {
	c := s
	if s.Amount != nil {
		c.Amount = new(big.Int).Set(s.Amount)
	}
	return c
}

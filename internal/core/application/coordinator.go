package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/metrics"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const historySize = 50

var errTrackingHorizon = errors.New("tracking horizon exceeded")

type CoordinatorConfig struct {
	ConfirmationTimeout  time.Duration
	PollInterval         time.Duration
	DroppedAfter         time.Duration
	TrackingHorizon      time.Duration
	OwnerCanAllocate     bool
	RestrictTaskCreation bool
}

type trackedTx struct {
	tx   domain.PendingTransaction
	err  error
	done chan struct{}
}

// coordinator validates, submits and tracks state-changing calls. Trackers
// run on their own context and outlive the callers that started them.
type coordinator struct {
	cfg      CoordinatorConfig
	clock    clockwork.Clock
	receipts ports.ReceiptSource
	mirror   *Mirror
	repo     domain.TransactionRepository

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock    sync.RWMutex
	pending map[string]*trackedTx
	history []domain.PendingTransaction
	subs    map[chan domain.TxUpdate]struct{}
}

func newCoordinator(
	cfg CoordinatorConfig, clock clockwork.Clock, receipts ports.ReceiptSource,
	mirror *Mirror, repo domain.TransactionRepository,
) *coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &coordinator{
		cfg:      cfg,
		clock:    clock,
		receipts: receipts,
		mirror:   mirror,
		repo:     repo,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*trackedTx),
		subs:     make(map[chan domain.TxUpdate]struct{}),
	}
}

func (c *coordinator) createTask(
	ctx context.Context, sess *session, maxParticipants uint64, amount *big.Int,
) (*domain.PendingTransaction, error) {
	if err := validateCreateTask(c.cfg, sess.roles, maxParticipants, amount); err != nil {
		return nil, err
	}

	tx := domain.PendingTransaction{
		Kind:   domain.TxKindCreateTask,
		Amount: new(big.Int).Set(amount),
	}
	return c.submit(ctx, sess, tx, func(ctx context.Context, w ports.ContractWriter) (common.Hash, error) {
		return w.CreateTaskNative(ctx, maxParticipants, amount)
	})
}

func (c *coordinator) allocateReward(
	ctx context.Context, sess *session, taskID uint64, recipient string, amount *big.Int,
) (*domain.PendingTransaction, error) {
	if err := checkAllocator(c.cfg, sess.roles); err != nil {
		return nil, err
	}
	user, err := utils.ParseAddress(recipient)
	if err != nil {
		return nil, domain.NewValidationError("recipient", "%s", err)
	}
	if user == (common.Address{}) {
		return nil, domain.NewValidationError("recipient", "zero address")
	}

	snapshot, err := c.mirror.FreshTasks(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateAllocation(snapshot, taskID, amount); err != nil {
		return nil, err
	}

	tx := domain.PendingTransaction{
		Kind:      domain.TxKindAllocateReward,
		TaskID:    taskID,
		Recipient: user,
		Amount:    new(big.Int).Set(amount),
	}
	return c.submit(ctx, sess, tx, func(ctx context.Context, w ports.ContractWriter) (common.Hash, error) {
		return w.AllocateReward(ctx, taskID, user, amount)
	})
}

func (c *coordinator) withdraw(
	ctx context.Context, sess *session,
) (*domain.PendingTransaction, error) {
	balance, err := c.mirror.FreshBalance(ctx)
	if err != nil {
		return nil, err
	}
	if balance.Amount == nil || balance.Amount.Sign() <= 0 {
		return nil, domain.NewValidationError("balance", "nothing to withdraw")
	}

	tx := domain.PendingTransaction{
		Kind:   domain.TxKindWithdraw,
		Amount: new(big.Int).Set(balance.Amount),
	}
	return c.submit(ctx, sess, tx, func(ctx context.Context, w ports.ContractWriter) (common.Hash, error) {
		return w.WithdrawNative(ctx)
	})
}

func (c *coordinator) submit(
	ctx context.Context, sess *session, tx domain.PendingTransaction,
	send func(ctx context.Context, w ports.ContractWriter) (common.Hash, error),
) (*domain.PendingTransaction, error) {
	tx.ID = uuid.New().String()
	tx.State = domain.TxStateIdle
	tx.ChainID = sess.chainID
	tx.From = sess.account

	hash, err := send(ctx, sess.writer)
	if err != nil {
		if errors.Is(err, domain.ErrUserRejected) {
			log.Infof("%s rejected by user", tx.Kind)
			c.emit(tx, err)
			return nil, err
		}
		log.WithError(err).Warnf("failed to submit %s", tx.Kind)
		return nil, &domain.TransactionFailedError{Cause: err}
	}

	tx.Hash = hash
	tx.State = domain.TxStateSubmitted
	tx.SubmittedAt = c.clock.Now()
	if err := c.repo.Add(ctx, tx); err != nil {
		log.WithError(err).Warnf("failed to journal tx %s", hash.Hex())
	}
	log.Infof("%s submitted with tx %s", tx.Kind, hash.Hex())

	c.emit(tx, nil)
	t := c.track(tx)

	return c.wait(ctx, t)
}

// wait blocks until the tracker settles tx, the confirmation timeout expires
// or the caller gives up. Only the first case is a definitive outcome.
func (c *coordinator) wait(ctx context.Context, t *trackedTx) (*domain.PendingTransaction, error) {
	timeout := c.clock.After(c.cfg.ConfirmationTimeout)

	select {
	case <-t.done:
		tx, err := c.snapshot(t)
		return &tx, err
	case <-timeout:
		tx, _ := c.snapshot(t)
		log.Warnf(
			"tx %s not confirmed within %s, tracking continues", tx.Hash.Hex(),
			c.cfg.ConfirmationTimeout,
		)
		return &tx, &domain.ConfirmationTimeoutError{
			Hash: tx.Hash, Waited: c.cfg.ConfirmationTimeout,
		}
	case <-ctx.Done():
		tx, _ := c.snapshot(t)
		return &tx, fmt.Errorf(
			"%w %s: %s", domain.ErrTransactionAbandoned, tx.Hash.Hex(), ctx.Err(),
		)
	}
}

func (c *coordinator) snapshot(t *trackedTx) (domain.PendingTransaction, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return t.tx, t.err
}

// resume starts tracking journaled transactions of the session account that
// are not tracked already.
func (c *coordinator) resume(ctx context.Context, sess *session) int {
	txs, err := c.repo.GetUnsettled(ctx, sess.account)
	if err != nil {
		log.WithError(err).Warn("failed to load unsettled transactions")
		return 0
	}

	count := 0
	for _, tx := range txs {
		if tx.ChainID != sess.chainID {
			continue
		}
		c.lock.RLock()
		_, ok := c.pending[tx.ID]
		c.lock.RUnlock()
		if ok {
			continue
		}
		c.track(tx)
		count++
	}
	if count > 0 {
		log.Infof("resumed tracking of %d unsettled transaction(s)", count)
	}
	return count
}

func (c *coordinator) track(tx domain.PendingTransaction) *trackedTx {
	t := &trackedTx{tx: tx, done: make(chan struct{})}

	c.lock.Lock()
	c.pending[tx.ID] = t
	c.lock.Unlock()

	c.wg.Add(1)
	go c.run(t)
	return t
}

func (c *coordinator) run(t *trackedTx) {
	defer c.wg.Done()

	hash := t.tx.Hash
	horizon := t.tx.SubmittedAt.Add(c.cfg.TrackingHorizon)
	var unknownSince time.Time

	err := utils.Retry(c.ctx, c.clock, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		status, receipt, err := c.receipts.TxStatus(ctx, hash)
		now := c.clock.Now()
		if err != nil {
			log.WithError(err).Debugf("failed to poll status of tx %s", hash.Hex())
		} else {
			switch status {
			case domain.ChainTxIncluded:
				c.settle(ctx, t, receipt)
				return true, nil
			case domain.ChainTxPending:
				unknownSince = time.Time{}
			default:
				if unknownSince.IsZero() {
					unknownSince = now
				}
				if c.cfg.DroppedAfter > 0 && now.Sub(unknownSince) >= c.cfg.DroppedAfter {
					log.Warnf("tx %s unknown to the node, considering it dropped", hash.Hex())
					c.fail(t, "dropped", domain.ErrTransactionDropped)
					return true, nil
				}
			}
		}
		if c.cfg.TrackingHorizon > 0 && !now.Before(horizon) {
			return false, errTrackingHorizon
		}
		return false, nil
	})
	if err == nil {
		return
	}
	if errors.Is(err, errTrackingHorizon) {
		log.Warnf("gave up tracking tx %s after %s", hash.Hex(), c.cfg.TrackingHorizon)
		c.fail(t, "timeout", domain.ErrConfirmationTimeout)
		return
	}

	// Shutting down: the journal keeps the record for the next session.
	c.lock.Lock()
	delete(c.pending, t.tx.ID)
	t.err = err
	c.lock.Unlock()
	close(t.done)
}

func (c *coordinator) settle(ctx context.Context, t *trackedTx, receipt *domain.Receipt) {
	if receipt == nil || !receipt.Succeeded {
		reason, err := c.receipts.RevertReason(ctx, t.tx.Hash)
		if err != nil {
			log.WithError(err).Debugf("failed to recover revert reason of %s", t.tx.Hash.Hex())
		}
		c.fail(t, reason, nil)
		return
	}

	c.refreshAfter(ctx, t.tx)
	c.finish(t, domain.TxStateConfirmed, "", nil)
	log.Infof("%s confirmed in tx %s", t.tx.Kind, t.tx.Hash.Hex())
}

func (c *coordinator) fail(t *trackedTx, reason string, cause error) {
	err := &domain.TransactionFailedError{Hash: t.tx.Hash, Reason: reason, Cause: cause}
	c.finish(t, domain.TxStateFailed, reason, err)
	log.WithError(err).Warnf("%s failed", t.tx.Kind)
}

// refreshAfter re-reads only the mirror state the confirmed call could have
// changed.
func (c *coordinator) refreshAfter(ctx context.Context, tx domain.PendingTransaction) {
	var err error
	switch tx.Kind {
	case domain.TxKindCreateTask:
		_, err = c.mirror.RefreshTasks(ctx)
	case domain.TxKindAllocateReward:
		_, err = c.mirror.RefreshTasks(ctx)
		if tx.Recipient == c.mirror.Account() {
			if _, berr := c.mirror.RefreshBalance(ctx); berr != nil {
				err = errors.Join(err, berr)
			}
		}
	case domain.TxKindWithdraw:
		if tx.From == c.mirror.Account() {
			_, err = c.mirror.RefreshBalance(ctx)
		}
	}
	if err != nil {
		log.WithError(err).Warnf("refresh after tx %s failed", tx.Hash.Hex())
	}
}

func (c *coordinator) finish(t *trackedTx, state domain.TxState, reason string, err error) {
	c.lock.Lock()
	t.tx.State = state
	t.tx.SettledAt = c.clock.Now()
	t.tx.FailReason = reason
	t.err = err
	tx := t.tx
	delete(c.pending, tx.ID)
	c.history = append([]domain.PendingTransaction{tx}, c.history...)
	if len(c.history) > historySize {
		c.history = c.history[:historySize]
	}
	c.lock.Unlock()

	if derr := c.repo.Delete(context.Background(), tx.ID); derr != nil {
		log.WithError(derr).Debugf("failed to drop journal record %s", tx.ID)
	}
	c.emit(tx, err)
	close(t.done)
}

// transactions returns tracked transactions oldest first followed by settled
// ones newest first.
func (c *coordinator) transactions() []domain.PendingTransaction {
	c.lock.RLock()
	defer c.lock.RUnlock()

	txs := make([]domain.PendingTransaction, 0, len(c.pending)+len(c.history))
	for _, t := range c.pending {
		txs = append(txs, t.tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].SubmittedAt.Before(txs[j].SubmittedAt)
	})
	return append(txs, c.history...)
}

// subscribe streams lifecycle transitions. Updates are dropped for readers
// that fall behind.
func (c *coordinator) subscribe(ctx context.Context) <-chan domain.TxUpdate {
	ch := make(chan domain.TxUpdate, 16)

	c.lock.Lock()
	c.subs[ch] = struct{}{}
	c.lock.Unlock()

	go func() {
		<-ctx.Done()
		c.lock.Lock()
		delete(c.subs, ch)
		c.lock.Unlock()
	}()
	return ch
}

func (c *coordinator) emit(tx domain.PendingTransaction, err error) {
	metrics.TransactionsTotal.WithLabelValues(tx.Kind.String(), tx.State.String()).Inc()

	update := domain.TxUpdate{
		TxID:  tx.ID,
		Kind:  tx.Kind,
		State: tx.State,
		Hash:  tx.Hash,
		Err:   err,
		At:    c.clock.Now(),
	}

	c.lock.RLock()
	defer c.lock.RUnlock()
	for ch := range c.subs {
		select {
		case ch <- update:
		default:
			log.Debugf("dropped %s update of tx %s for slow subscriber", tx.State, tx.ID)
		}
	}
}

func (c *coordinator) close() {
	c.cancel()
	c.wg.Wait()
}

func validateCreateTask(
	cfg CoordinatorConfig, roles domain.RoleSnapshot, maxParticipants uint64, amount *big.Int,
) error {
	if cfg.RestrictTaskCreation {
		if !roles.Resolved {
			return &domain.RoleDeniedError{Required: domain.RoleOwner, Reason: "roles not resolved"}
		}
		if !roles.IsOwner {
			return &domain.RoleDeniedError{Required: domain.RoleOwner}
		}
	}
	if maxParticipants == 0 {
		return domain.NewValidationError("max participants", "must be greater than zero")
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	return nil
}

func checkAllocator(cfg CoordinatorConfig, roles domain.RoleSnapshot) error {
	if !roles.Resolved {
		return &domain.RoleDeniedError{Required: domain.RoleVerifier, Reason: "roles not resolved"}
	}
	if roles.IsVerifier || (cfg.OwnerCanAllocate && roles.IsOwner) {
		return nil
	}
	return &domain.RoleDeniedError{
		Required: domain.RoleVerifier, Reason: "only the verifier may allocate rewards",
	}
}

func validateAllocation(snapshot TaskSnapshot, taskID uint64, amount *big.Int) error {
	if taskID >= snapshot.NextID {
		return domain.NewValidationError("task id", "task %d does not exist", taskID)
	}
	task, ok := snapshot.Task(taskID)
	if !ok {
		return domain.NewValidationError("task id", "task %d is closed", taskID)
	}
	if !task.IsActive {
		return domain.NewValidationError("task id", "task %d is not active", taskID)
	}
	if task.IsFull() {
		return domain.NewValidationError("task id", "task %d has no participant slots left", taskID)
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	if amount.Cmp(task.RemainingReward) > 0 {
		remaining := utils.FormatNative(task.RemainingReward, utils.NativeDecimals)
		return domain.NewValidationError("amount", "exceeds remaining reward of %s", remaining)
	}
	return nil
}

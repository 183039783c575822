package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ArkLabsHQ/fastertasks/pkg/monitor"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	PriceSourceLive     = "live"
	PriceSourceFallback = "fallback"

	eventWatcherName = "contract-events"
	reconnectTimeout = time.Minute
	priceTimeout     = 5 * time.Second
	bpsDenominator   = 10000
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type Config struct {
	Network               domain.Network
	Mirror                MirrorConfig
	Transactions          CoordinatorConfig
	RefreshInterval       time.Duration
	DefaultPlatformFeeBps uint64
	FallbackPrice         decimal.Decimal
	MinFundingUSD         decimal.Decimal
	VerificationTimeout   time.Duration
}

// session is the connection-scoped state. It is replaced as a whole, never
// patched, whenever the account or the network changes.
type session struct {
	account     common.Address
	chainID     uint64
	roles       domain.RoleSnapshot
	feeBps      uint64
	writer      ports.ContractWriter
	connectedAt time.Time
	cancel      context.CancelFunc
}

type SessionInfo struct {
	Connected   bool
	Account     common.Address
	ChainID     uint64
	Network     string
	Roles       domain.RoleSnapshot
	FeeBps      uint64
	Balance     BalanceSnapshot
	ConnectedAt time.Time
	LastError   string
}

type PriceQuote struct {
	USD    decimal.Decimal
	Source string
}

// FundingQuote converts a USD reward into the native amount to send with a
// task creation. It is informational only.
type FundingQuote struct {
	RewardUSD decimal.Decimal
	FeeUSD    decimal.Decimal
	TotalUSD  decimal.Decimal
	FeeBps    uint64
	Amount    *big.Int
	Price     PriceQuote
}

type VerificationAck struct {
	TaskID  uint64
	Account common.Address
	Message string
}

type ServiceOption func(*Service)

func WithClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

type Service struct {
	BuildInfo BuildInfo

	cfg          Config
	clock        clockwork.Clock
	gateway      ports.ContractGateway
	wallet       ports.WalletProvider
	priceFeed    ports.PriceFeed
	verifier     ports.VerificationBackend
	schedulerSvc ports.SchedulerService
	monitor      *monitor.Monitor

	conn   *connector
	roles  *roleResolver
	mirror *Mirror
	txs    *coordinator

	refreshTasksCh   chan struct{}
	refreshBalanceCh chan struct{}

	// connLock serializes connect and teardown. lock guards the fields below.
	connLock sync.Mutex
	lock     sync.RWMutex
	session  *session
	lastErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	buildInfo BuildInfo,
	cfg Config,
	gateway ports.ContractGateway,
	wallet ports.WalletProvider,
	repoManager ports.RepoManager,
	priceFeed ports.PriceFeed,
	verifier ports.VerificationBackend,
	schedulerSvc ports.SchedulerService,
	opts ...ServiceOption,
) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("missing contract gateway")
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		BuildInfo:        buildInfo,
		cfg:              cfg,
		clock:            clockwork.NewRealClock(),
		gateway:          gateway,
		wallet:           wallet,
		priceFeed:        priceFeed,
		verifier:         verifier,
		schedulerSvc:     schedulerSvc,
		monitor:          monitor.New(log.StandardLogger()),
		conn:             &connector{wallet: wallet, network: cfg.Network},
		roles:            &roleResolver{reader: gateway, defaultFee: cfg.DefaultPlatformFeeBps},
		refreshTasksCh:   make(chan struct{}, 1),
		refreshBalanceCh: make(chan struct{}, 1),
		ctx:              ctx,
		cancel:           cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mirror = NewMirror(gateway, cfg.Mirror, s.clock)
	s.txs = newCoordinator(
		cfg.Transactions, s.clock, gateway, s.mirror, repoManager.Transactions(),
	)
	return s, nil
}

// Start launches the refresh loop, the supervised event watcher and the
// periodic pull, then requests the first task refresh.
func (s *Service) Start() error {
	s.wg.Add(1)
	go s.refreshLoop()

	s.monitor.Supervise(s.ctx, eventWatcherName, s.watchEvents)

	if s.schedulerSvc != nil && s.cfg.RefreshInterval > 0 {
		if err := s.schedulerSvc.ScheduleEvery(s.cfg.RefreshInterval, func() {
			s.triggerTasks()
			s.triggerBalance()
		}); err != nil {
			return fmt.Errorf("failed to schedule periodic refresh: %w", err)
		}
		s.schedulerSvc.Start()
	}

	s.triggerTasks()
	log.Info("service started")
	return nil
}

func (s *Service) Stop() {
	if s.schedulerSvc != nil {
		s.schedulerSvc.Stop()
	}
	s.cancel()

	s.connLock.Lock()
	s.teardown("shutdown")
	s.connLock.Unlock()

	s.monitor.Stop()
	s.txs.close()
	s.wg.Wait()
	log.Info("service stopped")
}

// Network is the network the service requires wallets to be on.
func (s *Service) Network() domain.Network {
	return s.cfg.Network
}

// Ready reports whether the task mirror holds a fresh snapshot.
func (s *Service) Ready() bool {
	return s.mirror.Ready()
}

func (s *Service) Workers() []monitor.TaskStatus {
	return s.monitor.Snapshot()
}

// Connect authorizes an account on the configured network and resolves its
// session state. It is a no-op when a session already exists.
func (s *Service) Connect(ctx context.Context) (SessionInfo, error) {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	if s.currentSession() != nil {
		return s.Session(), nil
	}
	if err := s.connect(ctx); err != nil {
		return s.Session(), err
	}
	return s.Session(), nil
}

// Disconnect drops the session and every mirrored record. The public task
// listing is pulled again afterwards.
func (s *Service) Disconnect() {
	s.connLock.Lock()
	s.teardown("disconnect")
	s.connLock.Unlock()

	s.triggerTasks()
}

func (s *Service) Session() SessionInfo {
	// Copy under the lock: resolveRoles updates roles and fee in place.
	s.lock.RLock()
	var sess *session
	if s.session != nil {
		copied := *s.session
		sess = &copied
	}
	lastErr := s.lastErr
	s.lock.RUnlock()

	info := SessionInfo{
		Network: s.cfg.Network.Name,
		FeeBps:  s.cfg.DefaultPlatformFeeBps,
	}
	if lastErr != nil {
		info.LastError = lastErr.Error()
	}
	if sess == nil {
		return info
	}

	info.Connected = true
	info.Account = sess.account
	info.ChainID = sess.chainID
	info.Roles = sess.roles
	info.FeeBps = sess.feeBps
	info.ConnectedAt = sess.connectedAt
	info.Balance = s.mirror.Balance()
	return info
}

func (s *Service) Tasks() TaskSnapshot {
	return s.mirror.Tasks()
}

// Task returns a visible task. Terminal or unknown ids are not found.
func (s *Service) Task(id uint64) (domain.Task, error) {
	snapshot := s.mirror.Tasks()
	if !snapshot.Loaded {
		return domain.Task{}, domain.NewReadError("tasks", snapshot.Err)
	}
	task, ok := snapshot.Task(id)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %d", domain.ErrTaskNotFound, id)
	}
	return task, nil
}

// Refresh pulls tasks and, when connected, the balance. An unresolved role
// snapshot is resolved again as well.
func (s *Service) Refresh(ctx context.Context) (TaskSnapshot, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.mirror.RefreshTasks(gctx)
		return err
	})

	s.lock.RLock()
	sess := s.session
	resolved := sess != nil && sess.roles.Resolved
	s.lock.RUnlock()

	if sess != nil {
		g.Go(func() error {
			_, err := s.mirror.RefreshBalance(gctx)
			return err
		})
		if !resolved {
			g.Go(func() error {
				return s.resolveRoles(gctx, sess)
			})
		}
	}

	err := g.Wait()
	return s.mirror.Tasks(), err
}

func (s *Service) CreateTask(
	ctx context.Context, maxParticipants uint64, amount *big.Int,
) (*domain.PendingTransaction, error) {
	sess, err := s.requireSession()
	if err != nil {
		return nil, err
	}
	return s.txs.createTask(ctx, sess, maxParticipants, amount)
}

func (s *Service) AllocateReward(
	ctx context.Context, taskID uint64, recipient string, amount *big.Int,
) (*domain.PendingTransaction, error) {
	sess, err := s.requireSession()
	if err != nil {
		return nil, err
	}
	return s.txs.allocateReward(ctx, sess, taskID, recipient, amount)
}

func (s *Service) Withdraw(ctx context.Context) (*domain.PendingTransaction, error) {
	sess, err := s.requireSession()
	if err != nil {
		return nil, err
	}
	return s.txs.withdraw(ctx, sess)
}

func (s *Service) Transactions() []domain.PendingTransaction {
	return s.txs.transactions()
}

func (s *Service) SubscribeTransactions(ctx context.Context) <-chan domain.TxUpdate {
	return s.txs.subscribe(ctx)
}

func (s *Service) SubscribeMirror(ctx context.Context) <-chan struct{} {
	return s.mirror.Subscribe(ctx)
}

// VerifyTask hands a completion claim to the verification backend without
// waiting for it. Nothing on chain or in the mirror changes.
func (s *Service) VerifyTask(ctx context.Context, taskID uint64) (VerificationAck, error) {
	sess, err := s.requireSession()
	if err != nil {
		return VerificationAck{}, err
	}
	if snapshot := s.mirror.Tasks(); snapshot.Loaded && taskID >= snapshot.NextID {
		return VerificationAck{}, domain.NewValidationError(
			"task id", "task %d does not exist", taskID,
		)
	}

	ack := VerificationAck{
		TaskID:  taskID,
		Account: sess.account,
		Message: "verification request forwarded, completion is checked off-chain",
	}
	if s.verifier == nil {
		ack.Message = "verification is not available"
		return ack, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.verificationTimeout())
		defer cancel()
		if err := s.verifier.RequestVerification(ctx, taskID, sess.account); err != nil {
			log.WithError(err).Warnf("verification request for task %d failed", taskID)
		}
	}()
	return ack, nil
}

// Price returns the USD price of the native currency, falling back to the
// configured constant when the lookup fails.
func (s *Service) Price(ctx context.Context) PriceQuote {
	fallback := PriceQuote{USD: s.cfg.FallbackPrice, Source: PriceSourceFallback}
	if s.priceFeed == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, priceTimeout)
	defer cancel()
	price, err := s.priceFeed.NativeUSDPrice(ctx)
	if err != nil || !price.IsPositive() {
		log.WithError(err).Debug("price lookup failed, using fallback price")
		return fallback
	}
	return PriceQuote{USD: price, Source: PriceSourceLive}
}

func (s *Service) Quote(ctx context.Context, rewardUSD decimal.Decimal) (FundingQuote, error) {
	if rewardUSD.LessThan(s.cfg.MinFundingUSD) || !rewardUSD.IsPositive() {
		return FundingQuote{}, domain.NewValidationError(
			"reward", "minimum reward is %s USD", s.cfg.MinFundingUSD.String(),
		)
	}

	feeBps := s.Session().FeeBps
	price := s.Price(ctx)
	if !price.USD.IsPositive() {
		return FundingQuote{}, domain.NewValidationError("price", "no usable exchange rate")
	}

	fee := rewardUSD.Mul(decimal.NewFromInt(int64(feeBps))).Div(decimal.NewFromInt(bpsDenominator))
	total := rewardUSD.Add(fee)
	native := total.Shift(int32(utils.NativeDecimals)).Div(price.USD).Floor()

	return FundingQuote{
		RewardUSD: rewardUSD,
		FeeUSD:    fee,
		TotalUSD:  total,
		FeeBps:    feeBps,
		Amount:    native.BigInt(),
		Price:     price,
	}, nil
}

// connect must be called with connLock held.
func (s *Service) connect(ctx context.Context) error {
	account, err := s.conn.connect(ctx)
	if err != nil {
		s.setLastErr(err)
		log.WithError(err).Warn("failed to connect wallet")
		return err
	}

	sessCtx, cancel := context.WithCancel(s.ctx)
	sess := &session{
		account:     account,
		chainID:     s.cfg.Network.ChainID,
		roles:       domain.RoleSnapshot{Account: account},
		feeBps:      s.cfg.DefaultPlatformFeeBps,
		writer:      s.gateway.Bind(s.wallet, account),
		connectedAt: s.clock.Now(),
		cancel:      cancel,
	}
	if err := s.resolveRoles(ctx, sess); err != nil {
		log.WithError(err).Warn("failed to resolve roles, privileged actions disabled")
	}

	s.mirror.SetAccount(account)
	s.lock.Lock()
	s.session = sess
	s.lastErr = nil
	s.lock.Unlock()

	log.WithFields(log.Fields{
		"account": utils.ShortAddress(account),
		"chain":   sess.chainID,
		"role":    s.Session().Roles.Label(),
	}).Info("wallet connected")

	events, err := s.wallet.Subscribe(sessCtx)
	if err != nil {
		log.WithError(err).Warn("failed to subscribe to wallet events")
	} else {
		s.wg.Add(1)
		go s.watchWallet(sessCtx, events)
	}

	if _, err := s.mirror.RefreshBalance(ctx); err != nil {
		log.WithError(err).Warn("failed to read balance after connect")
	}
	s.txs.resume(ctx, sess)
	s.triggerTasks()
	return nil
}

func (s *Service) resolveRoles(ctx context.Context, sess *session) error {
	roles, cr, err := s.roles.resolve(ctx, sess.account, s.clock.Now())
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	sess.roles = roles
	sess.feeBps = cr.feeBps
	return nil
}

// teardown must be called with connLock held. The mirror is reset before it
// returns, so no read issued afterwards can observe the previous session.
func (s *Service) teardown(reason string) {
	s.lock.Lock()
	sess := s.session
	s.session = nil
	s.lock.Unlock()

	if sess != nil {
		sess.cancel()
		log.WithField("account", utils.ShortAddress(sess.account)).Infof(
			"session closed: %s", reason,
		)
	}
	s.mirror.Reset()
}

func (s *Service) watchWallet(ctx context.Context, events <-chan domain.WalletEvent) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.handleWalletEvent(event)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (s *Service) handleWalletEvent(event domain.WalletEvent) {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	sess := s.currentSession()
	if sess == nil {
		return
	}

	switch event.Kind {
	case domain.WalletAccountsChanged:
		if len(event.Accounts) == 0 {
			s.teardown("accounts revoked")
			s.triggerTasks()
			return
		}
		if event.Accounts[0] == sess.account {
			return
		}
		s.teardown("account changed")
	case domain.WalletChainChanged:
		if event.ChainID == sess.chainID {
			return
		}
		s.teardown(fmt.Sprintf("network changed to %d", event.ChainID))
	default:
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, reconnectTimeout)
	defer cancel()
	if err := s.connect(ctx); err != nil {
		s.triggerTasks()
	}
}

// watchEvents reduces contract notifications to refresh triggers. It runs
// under the monitor, which restarts it when the source fails.
func (s *Service) watchEvents(ctx context.Context, hb monitor.Heartbeat) error {
	events := make(chan domain.ChainEvent, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.gateway.WatchEvents(ctx, events)
	}()

	// The watcher resumes at the current head, so anything emitted while it
	// was down is only recovered by a full pull.
	s.triggerTasks()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return err
		case event := <-events:
			hb.Tick()
			log.WithFields(log.Fields{
				"event": event.Kind.String(),
				"task":  event.TaskID,
				"block": event.BlockNumber,
			}).Debug("contract event")

			s.triggerTasks()
			if event.Kind == domain.EventRewardAllocated && event.Account == s.mirror.Account() {
				s.triggerBalance()
			}
		}
	}
}

func (s *Service) refreshLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.refreshTasksCh:
			// Failures are logged and reflected in the snapshot.
			_, _ = s.mirror.RefreshTasks(s.ctx)
		case <-s.refreshBalanceCh:
			if s.mirror.Account() != (common.Address{}) {
				_, _ = s.mirror.RefreshBalance(s.ctx)
			}
		}
	}
}

func (s *Service) triggerTasks() {
	select {
	case s.refreshTasksCh <- struct{}{}:
	default:
	}
}

func (s *Service) triggerBalance() {
	select {
	case s.refreshBalanceCh <- struct{}{}:
	default:
	}
}

func (s *Service) currentSession() *session {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session
}

// requireSession returns a copy so callers never race with role updates.
func (s *Service) requireSession() (*session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.session == nil {
		if s.wallet == nil {
			return nil, domain.ErrNoProvider
		}
		return nil, domain.ErrNotConnected
	}
	sess := *s.session
	return &sess, nil
}

func (s *Service) setLastErr(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastErr = err
}

func (s *Service) verificationTimeout() time.Duration {
	if s.cfg.VerificationTimeout > 0 {
		return s.cfg.VerificationTimeout
	}
	return 30 * time.Second
}

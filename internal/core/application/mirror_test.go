package application_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/application"
	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var (
	ctx = context.Background()

	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	carol = common.HexToAddress("0x00000000000000000000000000000000000CA201")

	mirrorCfg = application.MirrorConfig{MaxConcurrentReads: 4}
)

func newMirror(chain *fakeChain) *application.Mirror {
	return application.NewMirror(chain, mirrorCfg, clockwork.NewRealClock())
}

func TestMirrorRefreshTasks(t *testing.T) {
	t.Run("terminal tasks are hidden", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(alice, 100, 3)
		chain.addTask(alice, 0, 3)
		chain.addTask(alice, 50, 3)
		chain.addTask(alice, 0, 3)
		chain.setTask(domain.Task{ID: 1, Creator: alice, RemainingReward: big.NewInt(0), MaxParticipants: 3})
		chain.setTask(domain.Task{ID: 2, Creator: alice, RemainingReward: big.NewInt(50), MaxParticipants: 3})

		mirror := newMirror(chain)
		snapshot, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		require.True(t, snapshot.Loaded)
		require.False(t, snapshot.Stale)
		require.EqualValues(t, 4, snapshot.NextID)

		ids := make([]uint64, 0, len(snapshot.Tasks))
		for _, task := range snapshot.Tasks {
			ids = append(ids, task.ID)
		}
		require.Equal(t, []uint64{0, 2, 3}, ids)

		_, ok := snapshot.Task(1)
		require.False(t, ok)
		require.True(t, mirror.Ready())
	})

	t.Run("empty table issues no task reads", func(t *testing.T) {
		chain := newFakeChain()
		mirror := newMirror(chain)

		snapshot, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		require.True(t, snapshot.Loaded)
		require.Empty(t, snapshot.Tasks)
		require.Zero(t, chain.taskReads())
	})

	t.Run("back to back refreshes are identical", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(alice, 100, 3)
		chain.addTask(bob, 0, 3)
		chain.addTask(carol, 25, 1)
		mirror := newMirror(chain)

		first, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		second, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)

		require.Equal(t, first.NextID, second.NextID)
		require.True(t, domain.EqualTasks(first.Tasks, second.Tasks))
		require.NotSame(t, first.Tasks[0].RemainingReward, second.Tasks[0].RemainingReward)
	})

	t.Run("snapshots are copies", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(alice, 100, 1)
		mirror := newMirror(chain)

		snapshot, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		snapshot.Tasks[0].RemainingReward.SetInt64(1)

		require.Zero(t, mirror.Tasks().Tasks[0].RemainingReward.Cmp(big.NewInt(100)))
	})
}

func TestMirrorStaleness(t *testing.T) {
	t.Run("failed refresh keeps previous tasks", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(alice, 100, 1)
		mirror := newMirror(chain)

		_, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)

		chain.setReadErr(errRPC)
		snapshot, err := mirror.RefreshTasks(ctx)
		require.ErrorIs(t, err, domain.ErrRead)
		require.True(t, snapshot.Stale)
		require.ErrorIs(t, snapshot.Err, domain.ErrRead)
		require.Len(t, snapshot.Tasks, 1)
		require.False(t, mirror.Ready())

		chain.setReadErr(nil)
		snapshot, err = mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		require.False(t, snapshot.Stale)
		require.NoError(t, snapshot.Err)
	})

	t.Run("single task read failure fails the refresh", func(t *testing.T) {
		chain := newFakeChain()
		for i := 0; i < 5; i++ {
			chain.addTask(alice, 100, 2)
		}
		mirror := newMirror(chain)

		before, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		require.Len(t, before.Tasks, 5)

		chain.addTask(bob, 70, 1)
		chain.setTaskErr(2, errRPC)
		snapshot, err := mirror.RefreshTasks(ctx)
		require.ErrorIs(t, err, domain.ErrRead)
		require.True(t, snapshot.Stale)
		require.ErrorIs(t, snapshot.Err, domain.ErrRead)
		require.EqualValues(t, 5, snapshot.NextID)
		require.True(t, domain.EqualTasks(before.Tasks, snapshot.Tasks))

		chain.setTaskErr(2, nil)
		snapshot, err = mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		require.False(t, snapshot.Stale)
		require.Len(t, snapshot.Tasks, 6)
	})

	t.Run("older refresh landing last is discarded", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(alice, 100, 1)

		entered, release := make(chan struct{}), make(chan struct{})
		chain.nextIDHook = func(call int, _ uint64) {
			if call == 1 {
				close(entered)
				<-release
			}
		}
		mirror := newMirror(chain)

		errCh := make(chan error, 1)
		go func() {
			_, err := mirror.RefreshTasks(ctx)
			errCh <- err
		}()
		<-entered

		chain.addTask(bob, 200, 2)
		snapshot, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, snapshot.NextID)

		close(release)
		require.NoError(t, <-errCh)

		snapshot = mirror.Tasks()
		require.EqualValues(t, 2, snapshot.NextID)
		require.Len(t, snapshot.Tasks, 2)
	})

	t.Run("older failure landing last does not mark stale", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(alice, 100, 1)
		chain.setReadErr(errRPC)

		entered, release := make(chan struct{}), make(chan struct{})
		chain.nextIDHook = func(call int, _ uint64) {
			if call == 1 {
				close(entered)
				<-release
			}
		}
		mirror := newMirror(chain)

		errCh := make(chan error, 1)
		go func() {
			_, err := mirror.RefreshTasks(ctx)
			errCh <- err
		}()
		<-entered

		chain.setReadErr(nil)
		_, err := mirror.RefreshTasks(ctx)
		require.NoError(t, err)

		close(release)
		require.ErrorIs(t, <-errCh, domain.ErrRead)
		require.False(t, mirror.Tasks().Stale)
		require.True(t, mirror.Ready())
	})

	t.Run("reset discards in-flight refresh", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(alice, 100, 1)

		entered, release := make(chan struct{}), make(chan struct{})
		chain.nextIDHook = func(call int, _ uint64) {
			if call == 1 {
				close(entered)
				<-release
			}
		}
		mirror := newMirror(chain)

		errCh := make(chan error, 1)
		go func() {
			_, err := mirror.RefreshTasks(ctx)
			errCh <- err
		}()
		<-entered

		mirror.Reset()
		close(release)
		require.NoError(t, <-errCh)
		require.False(t, mirror.Tasks().Loaded)
		require.Empty(t, mirror.Tasks().Tasks)
	})
}

func TestMirrorBalance(t *testing.T) {
	chain := newFakeChain()
	chain.setBalance(alice, 42)
	mirror := newMirror(chain)

	_, err := mirror.RefreshBalance(ctx)
	require.ErrorIs(t, err, domain.ErrNotConnected)

	mirror.SetAccount(alice)
	chain.setReadErr(errRPC)
	snapshot, err := mirror.RefreshBalance(ctx)
	require.ErrorIs(t, err, domain.ErrRead)
	require.Nil(t, snapshot.Amount)
	require.False(t, snapshot.Loaded)

	chain.setReadErr(nil)
	snapshot, err = mirror.RefreshBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, alice, snapshot.Account)
	require.EqualValues(t, 42, snapshot.Amount.Int64())

	mirror.SetAccount(bob)
	require.Nil(t, mirror.Balance().Amount)
	require.Equal(t, bob, mirror.Balance().Account)
}

func TestMirrorFreshTasks(t *testing.T) {
	chain := newFakeChain()
	chain.addTask(alice, 100, 1)
	mirror := newMirror(chain)

	chain.setReadErr(errRPC)
	_, err := mirror.FreshTasks(ctx)
	require.ErrorIs(t, err, domain.ErrRead)

	chain.setReadErr(nil)
	snapshot, err := mirror.FreshTasks(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Tasks, 1)

	reads := chain.counterReads()
	_, err = mirror.FreshTasks(ctx)
	require.NoError(t, err)
	require.Equal(t, reads, chain.counterReads())
}

func TestMirrorSubscribe(t *testing.T) {
	chain := newFakeChain()
	mirror := newMirror(chain)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates := mirror.Subscribe(subCtx)

	chain.addTask(alice, 100, 1)
	_, err := mirror.RefreshTasks(ctx)
	require.NoError(t, err)
	chain.addTask(alice, 100, 1)
	_, err = mirror.RefreshTasks(ctx)
	require.NoError(t, err)

	require.Len(t, updates, 1)
	<-updates

	_, err = mirror.RefreshTasks(ctx)
	require.NoError(t, err)
	select {
	case <-updates:
		t.Fatal("unexpected notification for unchanged snapshot")
	case <-time.After(20 * time.Millisecond):
	}
}

package contract

import (
	"context"
	"fmt"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

// WatchEvents forwards TaskCreated and RewardAllocated notifications to sink
// until ctx is done or the source fails. Undecodable logs are skipped.
func (g *gateway) WatchEvents(ctx context.Context, sink chan<- domain.ChainEvent) error {
	if g.subscribe {
		return g.watchSubscription(ctx, sink)
	}
	return g.watchPolling(ctx, sink)
}

func (g *gateway) filterQuery() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{g.address},
		Topics: [][]common.Hash{{
			g.abi.Events[eventTaskCreated].ID,
			g.abi.Events[eventRewardAllocated].ID,
		}},
	}
}

func (g *gateway) watchSubscription(ctx context.Context, sink chan<- domain.ChainEvent) error {
	logs := make(chan types.Log, 64)
	sub, err := g.backend.SubscribeFilterLogs(ctx, g.filterQuery(), logs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to contract logs: %w", err)
	}
	defer sub.Unsubscribe()

	log.Debug("watching contract events through subscription")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("log subscription closed")
			}
			return fmt.Errorf("log subscription failed: %w", err)
		case l := <-logs:
			if !g.forward(ctx, sink, l) {
				return ctx.Err()
			}
		}
	}
}

// watchPolling scans new block ranges with FilterLogs. It starts from the
// head at call time; earlier history is covered by full refreshes.
func (g *gateway) watchPolling(ctx context.Context, sink chan<- domain.ChainEvent) error {
	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	from := head + 1

	log.Debugf("watching contract events by polling every %s", g.pollInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.clock.After(g.pollInterval):
		}

		head, err := g.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		if head < from {
			continue
		}

		query := g.filterQuery()
		query.FromBlock = blockNumber(from)
		query.ToBlock = blockNumber(head)
		logs, err := g.backend.FilterLogs(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to filter logs in [%d, %d]: %w", from, head, err)
		}
		for _, l := range logs {
			if !g.forward(ctx, sink, l) {
				return ctx.Err()
			}
		}
		from = head + 1
	}
}

func (g *gateway) forward(ctx context.Context, sink chan<- domain.ChainEvent, l types.Log) bool {
	event, err := g.decodeLog(l)
	if err != nil {
		log.WithError(err).WithField("tx", l.TxHash.Hex()).Warn("skipping undecodable contract log")
		return true
	}
	metrics.ChainEventsTotal.WithLabelValues(event.Kind.String()).Inc()

	select {
	case sink <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *gateway) decodeLog(l types.Log) (domain.ChainEvent, error) {
	if len(l.Topics) == 0 {
		return domain.ChainEvent{}, fmt.Errorf("log without topics")
	}

	switch l.Topics[0] {
	case g.abi.Events[eventTaskCreated].ID:
		var ev taskCreatedLog
		if err := g.contract.UnpackLog(&ev, eventTaskCreated, l); err != nil {
			return domain.ChainEvent{}, fmt.Errorf("failed to unpack %s: %w", eventTaskCreated, err)
		}
		if !ev.TaskId.IsUint64() {
			return domain.ChainEvent{}, fmt.Errorf("task id %s overflows uint64", ev.TaskId)
		}
		return domain.ChainEvent{
			Kind:        domain.EventTaskCreated,
			TaskID:      ev.TaskId.Uint64(),
			Account:     ev.Creator,
			Amount:      ev.TotalReward,
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
		}, nil

	case g.abi.Events[eventRewardAllocated].ID:
		var ev rewardAllocatedLog
		if err := g.contract.UnpackLog(&ev, eventRewardAllocated, l); err != nil {
			return domain.ChainEvent{}, fmt.Errorf("failed to unpack %s: %w", eventRewardAllocated, err)
		}
		if !ev.TaskId.IsUint64() {
			return domain.ChainEvent{}, fmt.Errorf("task id %s overflows uint64", ev.TaskId)
		}
		return domain.ChainEvent{
			Kind:        domain.EventRewardAllocated,
			TaskID:      ev.TaskId.Uint64(),
			Account:     ev.User,
			Amount:      ev.Amount,
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
		}, nil

	default:
		return domain.ChainEvent{}, fmt.Errorf("unknown event topic %s", l.Topics[0].Hex())
	}
}

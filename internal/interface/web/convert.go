package web

import (
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/application"
	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/interface/web/types"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/ethereum/go-ethereum/common"
)

func toTask(task domain.Task, price application.PriceQuote) types.Task {
	meta := domain.MetaForTask(task.ID)
	remaining := utils.ToDecimal(task.RemainingReward, utils.NativeDecimals)

	t := types.Task{
		ID:               task.ID,
		Creator:          task.Creator.Hex(),
		Token:            task.Token.Hex(),
		Native:           task.IsNative(),
		RemainingReward:  "0",
		Remaining:        utils.FormatNative(task.RemainingReward, utils.NativeDecimals),
		MaxParticipants:  task.MaxParticipants,
		ParticipantsPaid: task.ParticipantsPaid,
		SlotsLeft:        task.SlotsLeft(),
		IsActive:         task.IsActive,
		Type:             meta.Type,
		HowToEarn:        meta.HowToEarn,
	}
	if task.RemainingReward != nil {
		t.RemainingReward = task.RemainingReward.String()
	}
	// Only native rewards can be priced.
	if task.IsNative() {
		t.RemainingUSD = utils.FormatUSDApprox(remaining.Mul(price.USD))
	}
	return t
}

func toTaskList(snapshot application.TaskSnapshot, price application.PriceQuote) types.TaskList {
	list := types.TaskList{
		Tasks:     make([]types.Task, 0, len(snapshot.Tasks)),
		NextID:    snapshot.NextID,
		Loaded:    snapshot.Loaded,
		Stale:     snapshot.Stale,
		UpdatedAt: formatTime(snapshot.UpdatedAt),
	}
	if snapshot.Err != nil {
		list.Error = snapshot.Err.Error()
	}
	for _, task := range snapshot.Tasks {
		list.Tasks = append(list.Tasks, toTask(task, price))
	}
	return list
}

func toSession(info application.SessionInfo, price application.PriceQuote) types.Session {
	s := types.Session{
		Connected: info.Connected,
		Network:   info.Network,
		Role:      info.Roles.Label(),
		Roles:     []string{},
		LastError: info.LastError,
	}
	if !info.Connected {
		return s
	}

	s.Account = info.Account.Hex()
	s.ShortName = utils.ShortAddress(info.Account)
	s.ChainID = info.ChainID
	s.FeeBps = info.FeeBps
	s.ConnectedAt = formatTime(info.ConnectedAt)
	if info.Roles.Resolved {
		for _, r := range info.Roles.Roles() {
			s.Roles = append(s.Roles, r.String())
		}
	}

	balance := &types.Balance{Stale: info.Balance.Stale}
	if info.Balance.Err != nil {
		balance.Error = info.Balance.Err.Error()
	}
	if info.Balance.Loaded && info.Balance.Amount != nil {
		balance.Amount = info.Balance.Amount.String()
		balance.Display = utils.FormatNative(info.Balance.Amount, utils.NativeDecimals)
		balance.USD = utils.FormatUSDApprox(
			utils.ToDecimal(info.Balance.Amount, utils.NativeDecimals).Mul(price.USD),
		)
	}
	s.Balance = balance
	return s
}

func toPrice(price application.PriceQuote) types.Price {
	return types.Price{USD: price.USD.String(), Source: price.Source}
}

func toQuote(quote application.FundingQuote) types.Quote {
	return types.Quote{
		RewardUSD:    quote.RewardUSD.StringFixed(2),
		FeeUSD:       quote.FeeUSD.StringFixed(2),
		TotalUSD:     quote.TotalUSD.StringFixed(2),
		FeeBps:       quote.FeeBps,
		Amount:       quote.Amount.String(),
		AmountNative: utils.ToDecimal(quote.Amount, utils.NativeDecimals).String(),
		Price:        toPrice(quote.Price),
	}
}

func (s *service) toTransaction(tx domain.PendingTransaction) types.Transaction {
	t := types.Transaction{
		ID:          tx.ID,
		Kind:        tx.Kind.String(),
		State:       tx.State.String(),
		ChainID:     tx.ChainID,
		From:        tx.From.Hex(),
		TaskID:      tx.TaskID,
		SubmittedAt: formatTime(tx.SubmittedAt),
		SettledAt:   formatTime(tx.SettledAt),
		FailReason:  tx.FailReason,
	}
	if tx.Hash != (common.Hash{}) {
		t.Hash = tx.Hash.Hex()
		if len(s.network.ExplorerURLs) > 0 {
			t.ExplorerURL = s.network.ExplorerURLs[0] + "/tx/" + t.Hash
		}
	}
	if tx.Recipient != (common.Address{}) {
		t.Recipient = tx.Recipient.Hex()
	}
	if tx.Amount != nil {
		t.Amount = tx.Amount.String()
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *service) toTransactionEvent(update domain.TxUpdate) types.TransactionEvent {
	ev := types.TransactionEvent{
		ID:    update.TxID,
		Kind:  update.Kind.String(),
		State: update.State.String(),
		At:    formatTime(update.At),
	}
	if update.Hash != (common.Hash{}) {
		ev.Hash = update.Hash.Hex()
		if len(s.network.ExplorerURLs) > 0 {
			ev.ExplorerURL = s.network.ExplorerURLs[0] + "/tx/" + ev.Hash
		}
	}
	if update.Err != nil {
		ev.Error = update.Err.Error()
		_, ev.Code = statusFor(update.Err)
	}
	return ev
}

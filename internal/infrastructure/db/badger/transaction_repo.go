package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sort"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/timshannon/badgerhold/v4"
)

const (
	transactionDir = "transactions"
)

type transactionRepository struct {
	store *badgerhold.Store
}

func NewTransactionRepository(
	baseDir string, logger badger.Logger,
) (domain.TransactionRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, transactionDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction store: %s", err)
	}
	return &transactionRepository{store}, nil
}

// Add stores a new pending transaction in the journal
func (r *transactionRepository) Add(ctx context.Context, tx domain.PendingTransaction) error {
	if err := r.store.Insert(tx.ID, toTxData(tx)); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
		return err
	}
	return nil
}

func (r *transactionRepository) Update(ctx context.Context, tx domain.PendingTransaction) error {
	err := r.store.Update(tx.ID, toTxData(tx))
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("transaction %s not found", tx.ID)
	}
	return err
}

func (r *transactionRepository) Get(ctx context.Context, id string) (*domain.PendingTransaction, error) {
	var data txData
	err := r.store.Get(id, &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	tx, err := data.toPendingTransaction()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetUnsettled returns the submitted but not yet settled transactions sent
// from the given account, oldest first.
func (r *transactionRepository) GetUnsettled(
	ctx context.Context, from common.Address,
) ([]domain.PendingTransaction, error) {
	query := badgerhold.
		Where("From").Eq(utils.NormalizeAddress(from.Hex())).
		And("State").Eq(int(domain.TxStateSubmitted))
	return r.find(query)
}

func (r *transactionRepository) GetAll(ctx context.Context) ([]domain.PendingTransaction, error) {
	return r.find(nil)
}

func (r *transactionRepository) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(id, txData{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

func (r *transactionRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *transactionRepository) find(query *badgerhold.Query) ([]domain.PendingTransaction, error) {
	var dataList []txData
	if err := r.store.Find(&dataList, query); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	txs := make([]domain.PendingTransaction, 0, len(dataList))
	for _, data := range dataList {
		tx, err := data.toPendingTransaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].SubmittedAt.Before(txs[j].SubmittedAt)
	})
	return txs, nil
}

type txData struct {
	ID          string
	Kind        int
	State       int
	Hash        string
	ChainID     uint64
	From        string
	TaskID      uint64
	Recipient   string
	Amount      string
	SubmittedAt int64
	SettledAt   int64
	FailReason  string
}

func toTxData(tx domain.PendingTransaction) txData {
	amount := ""
	if tx.Amount != nil {
		amount = tx.Amount.String()
	}
	var settledAt int64
	if !tx.SettledAt.IsZero() {
		settledAt = tx.SettledAt.UnixNano()
	}
	return txData{
		ID:          tx.ID,
		Kind:        int(tx.Kind),
		State:       int(tx.State),
		Hash:        tx.Hash.Hex(),
		ChainID:     tx.ChainID,
		From:        utils.NormalizeAddress(tx.From.Hex()),
		TaskID:      tx.TaskID,
		Recipient:   tx.Recipient.Hex(),
		Amount:      amount,
		SubmittedAt: tx.SubmittedAt.UnixNano(),
		SettledAt:   settledAt,
		FailReason:  tx.FailReason,
	}
}

func (d txData) toPendingTransaction() (domain.PendingTransaction, error) {
	var amount *big.Int
	if d.Amount != "" {
		var ok bool
		amount, ok = new(big.Int).SetString(d.Amount, 10)
		if !ok {
			return domain.PendingTransaction{}, fmt.Errorf(
				"invalid amount %q for transaction %s", d.Amount, d.ID,
			)
		}
	}
	var settledAt time.Time
	if d.SettledAt > 0 {
		settledAt = time.Unix(0, d.SettledAt)
	}
	return domain.PendingTransaction{
		ID:          d.ID,
		Kind:        domain.TxKind(d.Kind),
		State:       domain.TxState(d.State),
		Hash:        common.HexToHash(d.Hash),
		ChainID:     d.ChainID,
		From:        common.HexToAddress(d.From),
		TaskID:      d.TaskID,
		Recipient:   common.HexToAddress(d.Recipient),
		Amount:      amount,
		SubmittedAt: time.Unix(0, d.SubmittedAt),
		SettledAt:   settledAt,
		FailReason:  d.FailReason,
	}, nil
}

package db

import (
	"fmt"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	badgerdb "github.com/ArkLabsHQ/fastertasks/internal/infrastructure/db/badger"
	"github.com/dgraph-io/badger/v4"
)

type ServiceConfig struct {
	// Datadir is the journal root. Empty selects an in-memory store.
	Datadir string
	Logger  badger.Logger
}

type service struct {
	transactionRepo domain.TransactionRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	transactionRepo, err := badgerdb.NewTransactionRepository(config.Datadir, config.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction db: %s", err)
	}
	return &service{transactionRepo}, nil
}

func (s *service) Transactions() domain.TransactionRepository {
	return s.transactionRepo
}

func (s *service) Close() {
	s.transactionRepo.Close()
}

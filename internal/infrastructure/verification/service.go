package verification

import (
	"context"
	"sync"

	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// Request is a completion claim handed to the backend.
type Request struct {
	TaskID  uint64
	Account common.Address
}

// service stands in for the off-chain verification backend. It only records
// the claim; no verification takes place.
type service struct {
	lock     sync.Mutex
	requests []Request
}

func NewService() ports.VerificationBackend {
	return &service{}
}

func (s *service) RequestVerification(ctx context.Context, taskID uint64, account common.Address) error {
	s.lock.Lock()
	s.requests = append(s.requests, Request{TaskID: taskID, Account: account})
	s.lock.Unlock()

	log.WithFields(log.Fields{
		"task_id": taskID,
		"account": account.Hex(),
	}).Info("verification requested, no backend configured")
	return nil
}

// Requests returns the claims received so far.
func Requests(backend ports.VerificationBackend) []Request {
	s, ok := backend.(*service)
	if !ok {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Request(nil), s.requests...)
}

package application

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ResolveRoles derives the privilege set of account from the owner and
// verifier addresses in any letter case. An empty or zero account holds no
// roles.
func ResolveRoles(account, owner, verifier string, now time.Time) domain.RoleSnapshot {
	snapshot := domain.RoleSnapshot{Resolved: true, ResolvedAt: now}
	if !utils.IsValidAddress(account) {
		return snapshot
	}
	snapshot.Account = common.HexToAddress(account)
	if snapshot.Account == (common.Address{}) {
		return snapshot
	}
	snapshot.IsOwner = utils.SameAddress(account, owner)
	snapshot.IsVerifier = utils.SameAddress(account, verifier)
	return snapshot
}

// contractRoles is what the contract reports about privileged accounts.
type contractRoles struct {
	owner    common.Address
	verifier common.Address
	feeBps   uint64
	feeKnown bool
}

type roleResolver struct {
	reader     ports.ContractReader
	defaultFee uint64
}

// resolve reads owner, verifier and fee concurrently. Owner and verifier are
// required; the fee falls back to the configured default.
func (r *roleResolver) resolve(
	ctx context.Context, account common.Address, now time.Time,
) (domain.RoleSnapshot, contractRoles, error) {
	var cr contractRoles

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		owner, err := r.reader.Owner(gctx)
		if err != nil {
			return err
		}
		cr.owner = owner
		return nil
	})
	g.Go(func() error {
		verifier, err := r.reader.Verifier(gctx)
		if err != nil {
			return err
		}
		cr.verifier = verifier
		return nil
	})
	g.Go(func() error {
		fee, err := r.reader.PlatformFeeBps(gctx)
		if err != nil {
			log.WithError(err).Warnf(
				"failed to read platform fee, using default of %d bps", r.defaultFee,
			)
			return nil
		}
		cr.feeBps = fee
		cr.feeKnown = true
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.RoleSnapshot{Account: account}, cr, err
	}
	if !cr.feeKnown {
		cr.feeBps = r.defaultFee
	}

	snapshot := ResolveRoles(account.Hex(), cr.owner.Hex(), cr.verifier.Hex(), now)
	return snapshot, cr, nil
}

package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// connector brings a wallet provider onto the configured network and returns
// the account it authorized.
type connector struct {
	wallet  ports.WalletProvider
	network domain.Network
}

func (c *connector) connect(ctx context.Context) (common.Address, error) {
	if c.wallet == nil {
		return common.Address{}, domain.ErrNoProvider
	}

	accounts, err := c.wallet.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUserRejected) {
			return common.Address{}, err
		}
		return common.Address{}, fmt.Errorf("failed to request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, domain.ErrNotConnected
	}

	if err := c.ensureNetwork(ctx); err != nil {
		return common.Address{}, err
	}
	return accounts[0], nil
}

// ensureNetwork switches the provider to the configured chain, registering the
// chain first when the provider does not know it. Any failure is a
// *domain.WrongNetworkError.
func (c *connector) ensureNetwork(ctx context.Context) error {
	expected := c.network.ChainID

	current, err := c.wallet.ChainID(ctx)
	if err != nil {
		return &domain.WrongNetworkError{
			Expected: expected,
			Cause:    fmt.Errorf("failed to read wallet chain: %w", err),
		}
	}
	if current == expected {
		return nil
	}

	log.Infof("wallet is on chain %d, requesting switch to %d", current, expected)

	err = c.wallet.SwitchChain(ctx, expected)
	if errors.Is(err, domain.ErrUnrecognizedChain) {
		log.Infof("wallet does not know chain %d, adding %s", expected, c.network.Name)
		if err := c.wallet.AddChain(ctx, c.network); err != nil {
			return &domain.WrongNetworkError{Expected: expected, Actual: current, Cause: err}
		}
		err = c.wallet.SwitchChain(ctx, expected)
	}
	if err != nil {
		return &domain.WrongNetworkError{Expected: expected, Actual: current, Cause: err}
	}

	current, err = c.wallet.ChainID(ctx)
	if err != nil {
		return &domain.WrongNetworkError{Expected: expected, Cause: err}
	}
	if current != expected {
		return &domain.WrongNetworkError{Expected: expected, Actual: current}
	}
	return nil
}

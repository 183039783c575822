package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// cachedFeed serves the last successful price for ttl. Failures are not
// cached so the next call retries the lookup.
type cachedFeed struct {
	feed  ports.PriceFeed
	ttl   time.Duration
	clock clockwork.Clock

	lock      sync.Mutex
	price     decimal.Decimal
	fetchedAt time.Time
}

func NewCachedFeed(feed ports.PriceFeed, ttl time.Duration, clock clockwork.Clock) ports.PriceFeed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &cachedFeed{feed: feed, ttl: ttl, clock: clock}
}

func (c *cachedFeed) NativeUSDPrice(ctx context.Context) (decimal.Decimal, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.fetchedAt.IsZero() && c.clock.Since(c.fetchedAt) < c.ttl {
		return c.price, nil
	}

	price, err := c.feed.NativeUSDPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	c.price = price
	c.fetchedAt = c.clock.Now()
	return price, nil
}

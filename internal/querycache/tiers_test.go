package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTierOrdering(t *testing.T) {
	tiers := DefaultTiers()

	// Chain-tip state must go stale before aggregates, aggregates before
	// confirmed data.
	assert.Less(t, tiers.TTL(DomainLatestHeight), tiers.TTL(DomainBalance))
	assert.Less(t, tiers.TTL(DomainBalance), tiers.TTL(DomainGasPrice))
	assert.Less(t, tiers.TTL(DomainGasPrice), tiers.TTL(DomainStats))
	assert.Less(t, tiers.TTL(DomainStats), tiers.TTL(DomainBlock))
}

func TestImmutableDomains(t *testing.T) {
	tiers := DefaultTiers()

	assert.True(t, tiers.IsImmutable(DomainBlock))
	assert.True(t, tiers.IsImmutable(DomainTransaction))
	assert.True(t, tiers.IsImmutable(DomainReceipt))
	assert.True(t, tiers.IsImmutable(DomainChainID))

	assert.False(t, tiers.IsImmutable(DomainLatestHeight))
	assert.False(t, tiers.IsImmutable(DomainBalance))
	assert.False(t, tiers.IsImmutable(DomainStats))
}

func TestUnknownDomainGetsStatsTier(t *testing.T) {
	tiers := DefaultTiers()
	assert.Equal(t, tiers.TTL(DomainStats), tiers.TTL("somethingNew"))
}

func TestOverride(t *testing.T) {
	tiers := DefaultTiers()
	tiers.Override(DomainBalance, 42*time.Second)
	assert.Equal(t, 42*time.Second, tiers.TTL(DomainBalance))

	// Non-positive overrides are ignored.
	tiers.Override(DomainBalance, 0)
	assert.Equal(t, 42*time.Second, tiers.TTL(DomainBalance))
}

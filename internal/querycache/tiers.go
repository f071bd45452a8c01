package querycache

import "time"

// Immutable is the TTL applied to confirmed chain data. Within a session a
// confirmed block, transaction or receipt never changes, so the entry only
// leaves the store through an explicit invalidation or a chain reset.
const Immutable = 365 * 24 * time.Hour

// TierTable maps a query domain to how long its entries stay fresh.
// The policy ordering is deliberate: chain-tip state goes stale within
// seconds, aggregate analytics within tens of seconds, confirmed data never.
type TierTable struct {
	ttls map[string]time.Duration
}

// DefaultTiers returns the built-in staleness policy:
//
//	latestHeight < balance < gasPrice < stats < block
func DefaultTiers() *TierTable {
	return &TierTable{ttls: map[string]time.Duration{
		DomainLatestHeight: 2 * time.Second,
		DomainBalance:      5 * time.Second,
		DomainGasPrice:     10 * time.Second,
		DomainStats:        30 * time.Second,
		DomainActivity:     30 * time.Second,
		DomainEventLogs:    30 * time.Second,
		DomainChainID:      Immutable,
		DomainBlock:        Immutable,
		DomainTransaction:  Immutable,
		DomainReceipt:      Immutable,
	}}
}

// TTL returns the staleness TTL for a domain. Unknown domains get the
// stats tier, the conservative middle ground.
func (t *TierTable) TTL(domain string) time.Duration {
	if ttl, ok := t.ttls[domain]; ok {
		return ttl
	}
	return t.ttls[DomainStats]
}

// Override replaces the TTL for one domain. Used by config to apply
// YAML-provided tier overrides.
func (t *TierTable) Override(domain string, ttl time.Duration) {
	if ttl > 0 {
		t.ttls[domain] = ttl
	}
}

// IsImmutable reports whether the domain holds confirmed-once data. The
// executor uses this to decide which domains are worth writing through to
// the second-tier cache.
func (t *TierTable) IsImmutable(domain string) bool {
	return t.TTL(domain) >= Immutable
}

package querycache

import (
	"fmt"
	"strconv"
	"strings"
)

// Key names one logical query: the domain followed by its normalized
// parameters, joined with ':'. Two independently built keys for the same
// query compare equal, which is what the store and singleflight group rely
// on. Keys are ordinary strings so they work as map keys and support
// prefix-based domain invalidation.
type Key string

// Query domains. Each domain carries its own staleness tier (see tiers.go).
const (
	DomainLatestHeight = "latestHeight"
	DomainChainID      = "chainId"
	DomainGasPrice     = "gasPrice"
	DomainBalance      = "balance"
	DomainBlock        = "block"
	DomainTransaction  = "transaction"
	DomainReceipt      = "receipt"
	DomainStats        = "stats"
	DomainEventLogs    = "eventLogs"
	DomainActivity     = "activity"
)

// emptyParam stands in for an absent optional parameter. A filtered query
// and its unfiltered counterpart must never collapse to the same key, so
// the placeholder is always rendered.
const emptyParam = "-"

// MakeKey builds a deterministic cache key from a domain and its parameters.
// Hex-looking string parameters (addresses, hashes) are lowercased, numbers
// are rendered in decimal, and empty optional strings become a placeholder.
func MakeKey(domain string, params ...any) Key {
	if len(params) == 0 {
		return Key(domain)
	}

	parts := make([]string, 0, len(params)+1)
	parts = append(parts, domain)
	for _, p := range params {
		parts = append(parts, normalizeParam(p))
	}
	return Key(strings.Join(parts, ":"))
}

func normalizeParam(p any) string {
	switch v := p.(type) {
	case string:
		if v == "" {
			return emptyParam
		}
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			return strings.ToLower(v)
		}
		return v
	case uint64:
		return strconv.FormatUint(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return strings.ToLower(v.String())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Domain returns the leading domain component of the key.
func (k Key) Domain() string {
	s := string(k)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}

// InDomain reports whether the key belongs to the given domain.
func (k Key) InDomain(domain string) bool {
	return k.Domain() == domain
}

package querycache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeKeyDeterministic(t *testing.T) {
	a := MakeKey(DomainBlock, uint64(1234))
	b := MakeKey(DomainBlock, uint64(1234))
	assert.Equal(t, a, b)
	assert.Equal(t, Key("block:1234"), a)
}

func TestMakeKeyNormalizesHexCase(t *testing.T) {
	a := MakeKey(DomainBalance, "0xAbCdEf0123")
	b := MakeKey(DomainBalance, "0xabcdef0123")
	assert.Equal(t, a, b)
	assert.Equal(t, Key("balance:0xabcdef0123"), a)
}

func TestMakeKeyEmptyParamPlaceholder(t *testing.T) {
	filtered := MakeKey(DomainEventLogs, uint64(100), "transfer")
	unfiltered := MakeKey(DomainEventLogs, uint64(100), "")
	assert.NotEqual(t, filtered, unfiltered)
	assert.Equal(t, Key("eventLogs:100:-"), unfiltered)
}

func TestMakeKeyNoParams(t *testing.T) {
	assert.Equal(t, Key("latestHeight"), MakeKey(DomainLatestHeight))
}

func TestKeyDomain(t *testing.T) {
	assert.Equal(t, "block", MakeKey(DomainBlock, uint64(7)).Domain())
	assert.Equal(t, "latestHeight", MakeKey(DomainLatestHeight).Domain())
	assert.True(t, MakeKey(DomainReceipt, "0xff").InDomain(DomainReceipt))
	assert.False(t, MakeKey(DomainReceipt, "0xff").InDomain(DomainBlock))
}

func TestMakeKeyDistinctParamsDistinctKeys(t *testing.T) {
	seen := map[Key]bool{
		MakeKey(DomainActivity, "0xaa", uint64(100), 25): true,
		MakeKey(DomainActivity, "0xaa", uint64(200), 25): true,
		MakeKey(DomainActivity, "0xab", uint64(100), 25): true,
		MakeKey(DomainActivity, "0xaa", uint64(100), 50): true,
	}
	assert.Len(t, seen, 4)
}

package decoder

import (
	"testing"

	"emberscan/internal/models"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func topic(sig string) string {
	return crypto.Keccak256Hash([]byte(sig)).Hex()
}

func TestDecodeLogKnownEvent(t *testing.T) {
	d := DecodeLog(models.Log{Topics: []string{topic("Transfer(address,address,uint256)")}})
	assert.Equal(t, "Transfer", d.Event)

	d = DecodeLog(models.Log{Topics: []string{topic("Approval(address,address,uint256)")}})
	assert.Equal(t, "Approval", d.Event)
}

func TestDecodeLogUnknownEvent(t *testing.T) {
	d := DecodeLog(models.Log{Topics: []string{topic("Obscure(uint8)")}})
	assert.Empty(t, d.Event)

	d = DecodeLog(models.Log{})
	assert.Empty(t, d.Event)
}

func TestDecodeLogs(t *testing.T) {
	logs := []models.Log{
		{Topics: []string{topic("Deposit(address,uint256)")}},
		{Topics: []string{topic("Withdrawal(address,uint256)")}},
	}
	decoded := DecodeLogs(logs)
	require.Len(t, decoded, 2)
	assert.Equal(t, "Deposit", decoded[0].Event)
	assert.Equal(t, "Withdrawal", decoded[1].Event)
}

func TestParseTokenTransfer(t *testing.T) {
	l := models.Log{
		Address: "0xToKeN",
		Topics: []string{
			topic("Transfer(address,address,uint256)"),
			"0x000000000000000000000000a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			"0x000000000000000000000000dac17f958d2ee523a2206206994597c13d831ec7",
		},
		Data:        "0x00000000000000000000000000000000000000000000000000000000000f4240",
		TxHash:      "0xabc",
		BlockNumber: 123,
		LogIndex:    4,
	}

	transfer, err := ParseTokenTransfer(l)
	require.NoError(t, err)
	assert.Equal(t, "0xtoken", transfer.Token)
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", transfer.From)
	assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", transfer.To)
	assert.Equal(t, "1000000", transfer.ValueWei)
	assert.Equal(t, "0xabc", transfer.TxHash)
	assert.Equal(t, uint64(123), transfer.BlockNumber)
	assert.Equal(t, uint(4), transfer.LogIndex)
}

func TestParseTokenTransferRejectsWrongShape(t *testing.T) {
	_, err := ParseTokenTransfer(models.Log{Topics: []string{topic("Transfer(address,address,uint256)")}})
	assert.Error(t, err)

	_, err = ParseTokenTransfer(models.Log{Topics: []string{
		topic("Approval(address,address,uint256)"), "0x0", "0x0",
	}})
	assert.Error(t, err)
}

package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"emberscan/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures recognized by the decoder. Hashing them at init keeps
// the table and the topic0 lookup in one place.
var knownSignatures = []string{
	"Transfer(address,address,uint256)",
	"Approval(address,address,uint256)",
	"ApprovalForAll(address,address,bool)",
	"Deposit(address,uint256)",
	"Withdrawal(address,uint256)",
	"OwnershipTransferred(address,address)",
	"Swap(address,uint256,uint256,uint256,uint256,address)",
	"Mint(address,uint256,uint256)",
	"Burn(address,uint256,uint256,address)",
}

var eventNames map[common.Hash]string

// transferTopic is the keccak256 of Transfer(address,address,uint256).
var transferTopic common.Hash

func init() {
	eventNames = make(map[common.Hash]string, len(knownSignatures))
	for _, sig := range knownSignatures {
		name := sig[:strings.IndexByte(sig, '(')]
		eventNames[crypto.Keccak256Hash([]byte(sig))] = name
	}
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
}

// DecodedLog is a log with its event name resolved from the signature
// table. Logs with an unknown topic0 keep an empty Event.
type DecodedLog struct {
	models.Log
	Event string `json:"event,omitempty"`
}

// DecodeLogs resolves event names for a batch of logs.
func DecodeLogs(logs []models.Log) []DecodedLog {
	decoded := make([]DecodedLog, 0, len(logs))
	for _, l := range logs {
		decoded = append(decoded, DecodeLog(l))
	}
	return decoded
}

// DecodeLog resolves the event name for one log.
func DecodeLog(l models.Log) DecodedLog {
	d := DecodedLog{Log: l}
	if len(l.Topics) > 0 {
		d.Event = eventNames[common.HexToHash(l.Topics[0])]
	}
	return d
}

// TokenTransfer is a parsed ERC-20 Transfer event.
type TokenTransfer struct {
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	ValueWei    string `json:"value_wei"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint   `json:"log_index"`
}

// ParseTokenTransfer parses an ERC-20 Transfer log into a normalized
// transfer. Addresses come out lowercased, the value as a decimal string.
func ParseTokenTransfer(l models.Log) (*TokenTransfer, error) {
	if len(l.Topics) != 3 {
		return nil, fmt.Errorf("transfer log needs 3 topics, got %d", len(l.Topics))
	}
	if common.HexToHash(l.Topics[0]) != transferTopic {
		return nil, fmt.Errorf("not a Transfer event")
	}

	data := common.FromHex(l.Data)
	if len(data) != 32 {
		return nil, fmt.Errorf("transfer log needs 32 data bytes, got %d", len(data))
	}

	from := common.BytesToAddress(common.HexToHash(l.Topics[1]).Bytes())
	to := common.BytesToAddress(common.HexToHash(l.Topics[2]).Bytes())
	value := new(big.Int).SetBytes(data)

	return &TokenTransfer{
		Token:       strings.ToLower(l.Address),
		From:        strings.ToLower(from.Hex()),
		To:          strings.ToLower(to.Hex()),
		ValueWei:    value.String(),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.LogIndex,
	}, nil
}

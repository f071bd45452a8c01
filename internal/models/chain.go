package models

import "time"

// Block is a normalized block as served by the query layer.
// Hashes and addresses are lowercased hex strings so cached and serialized
// representations compare bytewise equal regardless of source formatting.
type Block struct {
	Number       uint64        `json:"number"`
	Hash         string        `json:"hash"`
	ParentHash   string        `json:"parent_hash"`
	Miner        string        `json:"miner"`
	Timestamp    time.Time     `json:"timestamp"`
	GasUsed      uint64        `json:"gas_used"`
	GasLimit     uint64        `json:"gas_limit"`
	BaseFeeWei   string        `json:"base_fee_wei,omitempty"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction is a normalized transaction embedded in a Block.
type Transaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to,omitempty"` // empty for contract creation
	ValueWei    string `json:"value_wei"`
	Gas         uint64 `json:"gas"`
	GasPriceWei string `json:"gas_price_wei"`
	Nonce       uint64 `json:"nonce"`
	Input       string `json:"input,omitempty"`
	BlockNumber uint64 `json:"block_number"`
	Index       uint   `json:"index"`
}

// Receipt is a normalized transaction receipt.
type Receipt struct {
	TxHash            string `json:"tx_hash"`
	Status            uint64 `json:"status"`
	GasUsed           uint64 `json:"gas_used"`
	EffectiveGasPrice string `json:"effective_gas_price,omitempty"`
	ContractAddress   string `json:"contract_address,omitempty"`
	BlockNumber       uint64 `json:"block_number"`
	TxIndex           uint   `json:"tx_index"`
	Logs              []Log  `json:"logs"`
}

// Log is a normalized event log entry.
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber uint64   `json:"block_number"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint     `json:"tx_index"`
	LogIndex    uint     `json:"log_index"`
}

// BlockWithReceipts pairs a block with the receipts of its transactions,
// indexed by transaction hash. Receipts may be missing entries when a
// constituent receipt fetch failed; callers decide how to surface that.
type BlockWithReceipts struct {
	Block    *Block              `json:"block"`
	Receipts map[string]*Receipt `json:"receipts"`
}

// ChainInfo is the live chain-tip summary shown on dashboards.
type ChainInfo struct {
	ChainID      uint64 `json:"chain_id"`
	LatestHeight uint64 `json:"latest_height"`
	GasPriceWei  string `json:"gas_price_wei"`
}

// HeadEvent is published on the stream whenever the chain tip advances.
type HeadEvent struct {
	Height     uint64    `json:"height"`
	Hash       string    `json:"hash"`
	ParentHash string    `json:"parent_hash"`
	TxCount    int       `json:"tx_count"`
	Timestamp  time.Time `json:"timestamp"`
	ObservedAt time.Time `json:"observed_at"`
}

package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"emberscan/internal/models"

	eth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNotFound marks data the node does not have (unknown hash, future
// block). Callers treat it as a definitive miss, not a transient failure.
var ErrNotFound = errors.New("not found")

// NodeClient is the remote data provider consumed by the query layer.
// It is assumed slow, rate-sensitive and intermittently failing; all
// batching and deduplication happens above it.
type NodeClient interface {
	LatestHeight(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	BlockByNumber(ctx context.Context, number uint64) (*models.Block, error)
	TransactionByHash(ctx context.Context, hash string) (*models.Transaction, error)
	TransactionReceipt(ctx context.Context, hash string) (*models.Receipt, error)
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
}

// backend is the raw RPC surface shared by a single ethclient and the
// failover pool.
type backend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Close()
}

// Client adapts a raw RPC backend (single node or failover pool) to the
// NodeClient interface, normalizing go-ethereum types into models.
type Client struct {
	backend backend
}

// NewClient connects to a single RPC endpoint.
func NewClient(rpcURL string) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}
	return &Client{backend: ec}, nil
}

// NewClientFromPool wraps a failover pool.
func NewClientFromPool(pool *Pool) *Client {
	return &Client{backend: pool}
}

func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest header: %w", err)
	}
	return header.Number.Uint64(), nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain id: %w", err)
	}
	return id.Uint64(), nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*models.Block, error) {
	block, err := c.backend.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		if errors.Is(err, eth.NotFound) {
			return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	return blockModel(block), nil
}

func (c *Client) TransactionByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	tx, _, err := c.backend.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, eth.NotFound) {
			return nil, fmt.Errorf("transaction %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}
	m := txModel(tx, 0, 0)
	return &m, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*models.Receipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, eth.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get receipt %s: %w", hash, err)
	}
	return receiptModel(receipt), nil
}

func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", address, err)
	}
	return balance, nil
}

// Close closes the underlying connection(s).
func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

func blockModel(b *types.Block) *models.Block {
	m := &models.Block{
		Number:       b.NumberU64(),
		Hash:         lowerHex(b.Hash()),
		ParentHash:   lowerHex(b.ParentHash()),
		Miner:        lowerHex(b.Coinbase()),
		Timestamp:    time.Unix(int64(b.Time()), 0).UTC(),
		GasUsed:      b.GasUsed(),
		GasLimit:     b.GasLimit(),
		Transactions: make([]models.Transaction, 0, len(b.Transactions())),
	}
	if b.BaseFee() != nil {
		m.BaseFeeWei = b.BaseFee().String()
	}
	for i, tx := range b.Transactions() {
		m.Transactions = append(m.Transactions, txModel(tx, b.NumberU64(), uint(i)))
	}
	return m
}

func txModel(tx *types.Transaction, blockNumber uint64, index uint) models.Transaction {
	m := models.Transaction{
		Hash:        lowerHex(tx.Hash()),
		ValueWei:    tx.Value().String(),
		Gas:         tx.Gas(),
		GasPriceWei: tx.GasPrice().String(),
		Nonce:       tx.Nonce(),
		BlockNumber: blockNumber,
		Index:       index,
	}
	if to := tx.To(); to != nil {
		m.To = lowerHex(*to)
	}
	if len(tx.Data()) > 0 {
		m.Input = "0x" + common.Bytes2Hex(tx.Data())
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		m.From = lowerHex(from)
	}
	return m
}

func receiptModel(r *types.Receipt) *models.Receipt {
	m := &models.Receipt{
		TxHash:      lowerHex(r.TxHash),
		Status:      r.Status,
		GasUsed:     r.GasUsed,
		BlockNumber: r.BlockNumber.Uint64(),
		TxIndex:     r.TransactionIndex,
		Logs:        make([]models.Log, 0, len(r.Logs)),
	}
	if r.EffectiveGasPrice != nil {
		m.EffectiveGasPrice = r.EffectiveGasPrice.String()
	}
	if (r.ContractAddress != common.Address{}) {
		m.ContractAddress = lowerHex(r.ContractAddress)
	}
	for _, l := range r.Logs {
		topics := make([]string, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, lowerHex(t))
		}
		m.Logs = append(m.Logs, models.Log{
			Address:     lowerHex(l.Address),
			Topics:      topics,
			Data:        "0x" + common.Bytes2Hex(l.Data),
			BlockNumber: l.BlockNumber,
			TxHash:      lowerHex(l.TxHash),
			TxIndex:     l.TxIndex,
			LogIndex:    l.Index,
		})
	}
	return m
}

type hexer interface{ Hex() string }

func lowerHex(v hexer) string {
	return strings.ToLower(v.Hex())
}

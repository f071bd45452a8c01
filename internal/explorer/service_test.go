package explorer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"emberscan/internal/ethereum"
	"emberscan/internal/models"
	"emberscan/internal/querycache"
	"emberscan/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode is an in-memory NodeClient with call counting, used to assert
// how often the cache actually reaches the backend.
type fakeNode struct {
	mu       sync.Mutex
	tip      uint64
	chainID  uint64
	gasPrice *big.Int
	blocks   map[uint64]*models.Block
	receipts map[string]*models.Receipt
	balances map[string]*big.Int

	blockCalls   atomic.Int32
	receiptCalls atomic.Int32
	heightCalls  atomic.Int32
}

func newFakeNode(tip uint64) *fakeNode {
	n := &fakeNode{
		tip:      tip,
		chainID:  31337,
		gasPrice: big.NewInt(1_000_000_000),
		blocks:   make(map[uint64]*models.Block),
		receipts: make(map[string]*models.Receipt),
		balances: make(map[string]*big.Int),
	}
	for i := uint64(0); i <= tip; i++ {
		n.addBlock(i, 2)
	}
	return n
}

func (n *fakeNode) addBlock(number uint64, txCount int) {
	b := &models.Block{
		Number:     number,
		Hash:       fmt.Sprintf("0xblock%d", number),
		ParentHash: fmt.Sprintf("0xblock%d", number-1),
		Timestamp:  time.Unix(int64(1700000000+number*12), 0).UTC(),
		GasLimit:   30_000_000,
		GasUsed:    15_000_000,
	}
	for i := 0; i < txCount; i++ {
		hash := fmt.Sprintf("0xtx%d_%d", number, i)
		b.Transactions = append(b.Transactions, models.Transaction{
			Hash:        hash,
			From:        fmt.Sprintf("0xsender%d", i),
			To:          fmt.Sprintf("0xrecipient%d", i),
			BlockNumber: number,
			Index:       uint(i),
			GasPriceWei: "1000000000",
		})
		n.receipts[hash] = &models.Receipt{
			TxHash:      hash,
			Status:      1,
			GasUsed:     21000,
			BlockNumber: number,
			TxIndex:     uint(i),
		}
	}
	n.blocks[number] = b
}

func (n *fakeNode) LatestHeight(ctx context.Context) (uint64, error) {
	n.heightCalls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tip, nil
}

func (n *fakeNode) setTip(tip uint64) {
	n.mu.Lock()
	n.tip = tip
	n.mu.Unlock()
}

func (n *fakeNode) ChainID(ctx context.Context) (uint64, error) { return n.chainID, nil }

func (n *fakeNode) GasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(n.gasPrice), nil
}

func (n *fakeNode) BlockByNumber(ctx context.Context, number uint64) (*models.Block, error) {
	n.blockCalls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.blocks[number]
	if !ok {
		return nil, ethereum.ErrNotFound
	}
	return b, nil
}

func (n *fakeNode) TransactionByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, b := range n.blocks {
		for i := range b.Transactions {
			if b.Transactions[i].Hash == hash {
				return &b.Transactions[i], nil
			}
		}
	}
	return nil, ethereum.ErrNotFound
}

func (n *fakeNode) TransactionReceipt(ctx context.Context, hash string) (*models.Receipt, error) {
	n.receiptCalls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.receipts[hash]
	if !ok {
		return nil, ethereum.ErrNotFound
	}
	return r, nil
}

func (n *fakeNode) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func newTestService(node *fakeNode) *Service {
	log := logger.New(logger.Options{Level: "error"})
	qc := querycache.NewCache(querycache.NewStore(), querycache.DefaultTiers(), log)
	qc.RetryBackoff = time.Millisecond
	return NewService(qc, node, nil, log, querycache.BatchOptions{ChunkSize: 5, Concurrency: 3})
}

func TestBlockCachedAcrossReads(t *testing.T) {
	node := newFakeNode(10)
	svc := newTestService(node)
	ctx := context.Background()

	b1, err := svc.Block(ctx, 5)
	require.NoError(t, err)
	b2, err := svc.Block(ctx, 5)
	require.NoError(t, err)

	assert.Equal(t, b1.Hash, b2.Hash)
	assert.Equal(t, int32(1), node.blockCalls.Load())
}

func TestBlockRangeAscendingOrder(t *testing.T) {
	node := newFakeNode(30)
	svc := newTestService(node)

	blocks, err := svc.BlockRange(context.Background(), 12, 25)
	require.NoError(t, err)
	require.Len(t, blocks, 14)
	for i, b := range blocks {
		assert.Equal(t, uint64(12+i), b.Number)
	}
}

func TestBlockRangeReusesCachedBlocks(t *testing.T) {
	node := newFakeNode(30)
	svc := newTestService(node)
	ctx := context.Background()

	_, err := svc.BlockRange(ctx, 0, 9)
	require.NoError(t, err)
	first := node.blockCalls.Load()

	// Overlapping window only fetches the uncovered tail.
	_, err = svc.BlockRange(ctx, 5, 14)
	require.NoError(t, err)
	assert.Equal(t, first+5, node.blockCalls.Load())
}

func TestReceiptsDedupeAndCache(t *testing.T) {
	node := newFakeNode(3)
	svc := newTestService(node)
	ctx := context.Background()

	hashes := []string{"0xtx1_0", "0xtx1_1", "0xtx1_0"}
	receipts, failed := svc.Receipts(ctx, hashes)
	assert.Empty(t, failed)
	assert.Len(t, receipts, 2)
	assert.Equal(t, int32(2), node.receiptCalls.Load())

	// Immutable domain: the second pass is fully served from cache.
	_, failed = svc.Receipts(ctx, hashes)
	assert.Empty(t, failed)
	assert.Equal(t, int32(2), node.receiptCalls.Load())
}

func TestReceiptsPartialFailure(t *testing.T) {
	node := newFakeNode(3)
	svc := newTestService(node)

	receipts, failed := svc.Receipts(context.Background(), []string{"0xtx2_0", "0xmissing"})
	assert.Len(t, receipts, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "0xmissing", failed[0].Key)
	assert.ErrorIs(t, failed[0].Err, ethereum.ErrNotFound)
}

func TestBalancesFanOut(t *testing.T) {
	node := newFakeNode(3)
	node.balances["0xaa"] = big.NewInt(100)
	node.balances["0xbb"] = big.NewInt(200)
	svc := newTestService(node)

	res := svc.Balances(context.Background(), []string{"0xAA", "0xBB"})
	assert.False(t, res.IsError)
	require.Len(t, res.Data, 2)
	assert.Equal(t, int64(100), res.Data["0xAA"].Int64())
	assert.Equal(t, int64(200), res.Data["0xBB"].Int64())
}

func TestInvalidateChainTipKeepsImmutableDomains(t *testing.T) {
	node := newFakeNode(10)
	svc := newTestService(node)
	ctx := context.Background()

	_, err := svc.Block(ctx, 3)
	require.NoError(t, err)
	_, err = svc.LatestHeight(ctx)
	require.NoError(t, err)

	svc.InvalidateChainTip()

	// Confirmed block survives, the tip height does not.
	_, ok := querycache.Peek[*models.Block](svc.Cache(), querycache.MakeKey(querycache.DomainBlock, uint64(3)))
	assert.True(t, ok)
	_, ok = querycache.Peek[uint64](svc.Cache(), querycache.MakeKey(querycache.DomainLatestHeight))
	assert.False(t, ok)
}

func TestResetAllDropsEverything(t *testing.T) {
	node := newFakeNode(10)
	svc := newTestService(node)
	ctx := context.Background()

	_, err := svc.Block(ctx, 3)
	require.NoError(t, err)

	svc.ResetAll(ctx)
	assert.Equal(t, 0, svc.Cache().Store().Len())
}

func TestTransactionEmptyHashDisabled(t *testing.T) {
	node := newFakeNode(3)
	svc := newTestService(node)

	tx, err := svc.Transaction(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

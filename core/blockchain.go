package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"autoseal-node/cache"
	"autoseal-node/database"
	"autoseal-node/interfaces"
	"autoseal-node/logger"
	"autoseal-node/metrics"
	"autoseal-node/state"
)

// ChainConfig carries the chain-wide parameters.
type ChainConfig struct {
	ChainID uint64
}

func (c *ChainConfig) GetChainID() uint64 { return c.ChainID }

// GenesisSpec is the JSON genesis description loaded at first start.
type GenesisSpec struct {
	ChainID   uint64                  `json:"chainId"`
	Timestamp uint64                  `json:"timestamp"`
	GasLimit  uint64                  `json:"gasLimit"`
	BaseFee   *uint256.Int            `json:"baseFeePerGas,omitempty"`
	ExtraData string                  `json:"extraData,omitempty"`
	Alloc     map[string]GenesisAlloc `json:"alloc"`
}

type GenesisAlloc struct {
	Balance *uint256.Int `json:"balance"`
}

// DefaultGenesis is used when no genesis file is configured.
func DefaultGenesis(chainID uint64) *GenesisSpec {
	return &GenesisSpec{
		ChainID:   chainID,
		Timestamp: uint64(time.Now().Unix()),
		GasLimit:  30_000_000,
		BaseFee:   uint256.NewInt(params.InitialBaseFee),
		Alloc:     map[string]GenesisAlloc{},
	}
}

// LoadGenesis reads a genesis spec from a JSON file.
func LoadGenesis(path string) (*GenesisSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file %s: %w", path, err)
	}
	var spec GenesisSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file %s: %w", path, err)
	}
	if spec.GasLimit == 0 {
		spec.GasLimit = 30_000_000
	}
	if spec.GasLimit < params.MinGasLimit {
		spec.GasLimit = params.MinGasLimit
	}
	return &spec, nil
}

// HeadSnapshot is an immutable view of the canonical head. Readers get a
// copy; only canonical insertion replaces it.
type HeadSnapshot struct {
	Hash            common.Hash
	Number          uint64
	ParentHash      common.Hash
	Timestamp       uint64
	GasLimit        uint64
	GasUsed         uint64
	BaseFee         *uint256.Int
	StateRoot       common.Hash
	TotalDifficulty uint64
}

func (h *HeadSnapshot) GetNumber() uint64          { return h.Number }
func (h *HeadSnapshot) GetParentHash() common.Hash { return h.ParentHash }
func (h *HeadSnapshot) GetTimestamp() uint64       { return h.Timestamp }
func (h *HeadSnapshot) GetGasLimit() uint64        { return h.GasLimit }
func (h *HeadSnapshot) GetGasUsed() uint64         { return h.GasUsed }
func (h *HeadSnapshot) GetBaseFee() *uint256.Int   { return h.BaseFee }
func (h *HeadSnapshot) GetHash() common.Hash       { return h.Hash }

func snapshotOf(header *BlockHeader, td uint64) *HeadSnapshot {
	return &HeadSnapshot{
		Hash:            header.Hash,
		Number:          header.Number,
		ParentHash:      header.ParentHash,
		Timestamp:       header.Timestamp,
		GasLimit:        header.GasLimit,
		GasUsed:         header.GasUsed,
		BaseFee:         new(uint256.Int).Set(header.BaseFee),
		StateRoot:       header.StateRoot,
		TotalDifficulty: td,
	}
}

// Blockchain is the canonical single chain. There are no forks or
// reorgs; every inserted block must extend the current head.
type Blockchain struct {
	db        *database.Database
	cache     *cache.Cache
	engine    interfaces.Engine
	validator *Validator
	config    *ChainConfig
	mempool   *Mempool

	headMu sync.RWMutex
	head   *HeadSnapshot
}

const (
	blockPrefix  = "block_"
	numberPrefix = "num_"
	txPrefix     = "tx_"
	tdPrefix     = "td_"
	headKey      = "currentBlock"
)

// Every sealed block carries difficulty one, so the total difficulty of
// a chain of n+1 blocks is n+1.
const blockDifficulty = 1

func EncodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// NewBlockchain opens the chain, creating the genesis block when the
// database is empty or forceGenesis is set.
func NewBlockchain(db *database.Database, engine interfaces.Engine, validator *Validator, genesis *GenesisSpec, forceGenesis bool) (*Blockchain, error) {
	bc := &Blockchain{
		db:        db,
		cache:     cache.NewCache(5*time.Minute, 1024),
		engine:    engine,
		validator: validator,
		config:    &ChainConfig{ChainID: genesis.ChainID},
	}

	headHash, err := db.Get([]byte(headKey))
	if err == database.ErrNotFound || forceGenesis {
		if err := bc.setupGenesis(genesis); err != nil {
			return nil, err
		}
		return bc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read head marker: %v", ErrStorage, err)
	}

	block, err := bc.GetBlockByHash(common.BytesToHash(headHash))
	if err != nil {
		return nil, fmt.Errorf("%w: head block missing: %v", ErrStorage, err)
	}
	td, err := bc.GetTotalDifficulty(block.Header.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: total difficulty for head missing: %v", ErrStorage, err)
	}
	bc.head = snapshotOf(block.Header, td)
	logger.Infof("Loaded chain head: block %d (%s)", bc.head.Number, bc.head.Hash.Hex())
	return bc, nil
}

func (bc *Blockchain) setupGenesis(spec *GenesisSpec) error {
	st, err := state.NewStateDB(common.Hash{}, bc.db)
	if err != nil {
		return err
	}
	for addr, alloc := range spec.Alloc {
		if alloc.Balance != nil {
			st.SetBalance(common.HexToAddress(addr), alloc.Balance)
		}
	}

	baseFee := spec.BaseFee
	if baseFee == nil {
		baseFee = uint256.NewInt(params.InitialBaseFee)
	}
	gasLimit := spec.GasLimit
	if gasLimit < params.MinGasLimit {
		// A genesis below the protocol minimum has no valid child: the
		// floor would put every derived limit outside the parent bound.
		gasLimit = params.MinGasLimit
	}
	block := NewBlock(common.Hash{}, 0, spec.Timestamp, gasLimit, baseFee, common.Address{})
	block.Header.Extra = []byte(spec.ExtraData)

	batch := bc.db.NewBatch()
	block.Header.StateRoot = st.Commit(batch)
	block.Header.TxHash = TransactionsRoot(nil)
	block.Header.ReceiptHash = ReceiptsRoot(nil)
	block.Header.LogsBloom = make([]byte, BloomByteLength)

	hash, err := block.CalculateHash()
	if err != nil {
		return err
	}
	block.Header.Hash = hash

	if err := bc.writeBlock(batch, block, blockDifficulty); err != nil {
		return err
	}
	bc.head = snapshotOf(block.Header, blockDifficulty)
	logger.Infof("Wrote genesis block %s (chain %d, %d allocations)", hash.Hex(), spec.ChainID, len(spec.Alloc))
	return nil
}

func (bc *Blockchain) writeBlock(batch *database.Batch, block *Block, td uint64) error {
	data, err := block.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode block %d: %w", block.Header.Number, err)
	}
	batch.Put(append([]byte(blockPrefix), block.Header.Hash.Bytes()...), data)
	batch.Put(append([]byte(numberPrefix), EncodeUint64(block.Header.Number)...), block.Header.Hash.Bytes())
	batch.Put(append([]byte(tdPrefix), block.Header.Hash.Bytes()...), EncodeUint64(td))
	batch.Put([]byte(headKey), block.Header.Hash.Bytes())
	for i, tx := range block.Transactions {
		entry := append(block.Header.Hash.Bytes(), EncodeUint64(uint64(i))...)
		batch.Put(append([]byte(txPrefix), tx.Hash.Bytes()...), entry)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("%w: failed to write block %d: %v", ErrStorage, block.Header.Number, err)
	}
	return nil
}

// SetMempool attaches the pool so included transactions are pruned on
// canonical insertion.
func (bc *Blockchain) SetMempool(mp *Mempool) { bc.mempool = mp }

func (bc *Blockchain) Config() *ChainConfig { return bc.config }

func (bc *Blockchain) Engine() interfaces.Engine { return bc.engine }

// CurrentHead returns the canonical head snapshot.
func (bc *Blockchain) CurrentHead() *HeadSnapshot {
	bc.headMu.RLock()
	defer bc.headMu.RUnlock()
	return bc.head
}

// StateAt opens the account state committed under root.
func (bc *Blockchain) StateAt(root common.Hash) (*state.StateDB, error) {
	return state.NewStateDB(root, bc.db)
}

func (bc *Blockchain) GetBlockByHash(hash common.Hash) (*Block, error) {
	if cached, ok := bc.cache.Get(hash.Hex()); ok {
		return cached.(*Block), nil
	}
	data, err := bc.db.Get(append([]byte(blockPrefix), hash.Bytes()...))
	if err != nil {
		return nil, fmt.Errorf("block %s not found: %w", hash.Hex(), err)
	}
	block, err := BlockFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt block %s: %w", hash.Hex(), err)
	}
	bc.cache.Set(hash.Hex(), block)
	return block, nil
}

func (bc *Blockchain) GetBlockByNumber(number uint64) (*Block, error) {
	hashBytes, err := bc.db.Get(append([]byte(numberPrefix), EncodeUint64(number)...))
	if err != nil {
		return nil, fmt.Errorf("block %d not found: %w", number, err)
	}
	return bc.GetBlockByHash(common.BytesToHash(hashBytes))
}

// GetTotalDifficulty returns the total difficulty accumulated up to and
// including the block with the given hash.
func (bc *Blockchain) GetTotalDifficulty(hash common.Hash) (uint64, error) {
	data, err := bc.db.Get(append([]byte(tdPrefix), hash.Bytes()...))
	if err != nil {
		return 0, fmt.Errorf("total difficulty for %s not found: %w", hash.Hex(), err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt total difficulty entry for %s", hash.Hex())
	}
	return binary.BigEndian.Uint64(data), nil
}

// GetTransaction looks up an included transaction through the tx index.
// It returns the transaction, the block carrying it and its index there.
func (bc *Blockchain) GetTransaction(hash common.Hash) (*Transaction, *Block, uint64, error) {
	entry, err := bc.db.Get(append([]byte(txPrefix), hash.Bytes()...))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("transaction %s not found: %w", hash.Hex(), err)
	}
	if len(entry) != common.HashLength+8 {
		return nil, nil, 0, fmt.Errorf("corrupt tx index entry for %s", hash.Hex())
	}
	blockHash := common.BytesToHash(entry[:common.HashLength])
	index := binary.BigEndian.Uint64(entry[common.HashLength:])
	block, err := bc.GetBlockByHash(blockHash)
	if err != nil {
		return nil, nil, 0, err
	}
	if index >= uint64(len(block.Transactions)) {
		return nil, nil, 0, fmt.Errorf("tx index for %s out of range", hash.Hex())
	}
	return block.Transactions[index], block, index, nil
}

// GetReceipt looks up the receipt of an included transaction.
func (bc *Blockchain) GetReceipt(hash common.Hash) (*TransactionReceipt, error) {
	_, block, index, err := bc.GetTransaction(hash)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(block.Receipts)) {
		return nil, fmt.Errorf("no receipt for transaction %s", hash.Hex())
	}
	return block.Receipts[index], nil
}

// InsertCanonical validates a sealed block against the head, persists it
// together with its state in one atomic batch, and swaps the head. The
// pool is pruned of included transactions afterwards.
func (bc *Blockchain) InsertCanonical(block *Block, st *state.StateDB) error {
	bc.headMu.Lock()
	defer bc.headMu.Unlock()

	head := bc.head
	if block.Header.Hash == head.Hash {
		return ErrKnownBlock
	}
	if block.Header.ParentHash != head.Hash {
		return fmt.Errorf("%w: block %d has parent %s, head is %s",
			ErrUnknownParent, block.Header.Number, block.Header.ParentHash.Hex(), head.Hash.Hex())
	}
	if err := bc.engine.ValidateHeader(block.Header, head); err != nil {
		return err
	}
	if err := bc.validator.ValidateBody(block); err != nil {
		return err
	}

	batch := bc.db.NewBatch()
	root := st.Commit(batch)
	if root != block.Header.StateRoot {
		return fmt.Errorf("state root mismatch for block %d: computed %s, header has %s",
			block.Header.Number, root.Hex(), block.Header.StateRoot.Hex())
	}
	td := head.TotalDifficulty + blockDifficulty
	if err := bc.writeBlock(batch, block, td); err != nil {
		return err
	}

	bc.head = snapshotOf(block.Header, td)
	bc.cache.Set(block.Header.Hash.Hex(), block)

	if bc.mempool != nil {
		for _, tx := range block.Transactions {
			bc.mempool.Remove(tx.Hash)
		}
	}

	metrics.GetMetrics().IncrementBlockCount()
	metrics.GetMetrics().AddTransactionsIncluded(len(block.Transactions))
	logger.LogBlockEvent(block.Header.Number, block.Header.Hash.Hex(), len(block.Transactions), block.Header.GasUsed)
	return nil
}

// Close releases the block cache. The database is owned by the caller.
func (bc *Blockchain) Close() {
	bc.cache.Close()
}

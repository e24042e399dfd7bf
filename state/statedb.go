package state

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"autoseal-node/crypto"
	"autoseal-node/database"
)

// Account is the flat per-address record tracked by the state database.
type Account struct {
	Nonce    uint64       `json:"nonce"`
	Balance  *uint256.Int `json:"balance"`
	CodeHash common.Hash  `json:"codeHash"`
}

func (a *Account) copy() *Account {
	return &Account{
		Nonce:    a.Nonce,
		Balance:  new(uint256.Int).Set(a.Balance),
		CodeHash: a.CodeHash,
	}
}

type accountRecord struct {
	Address  common.Address `json:"address"`
	Nonce    uint64         `json:"nonce"`
	Balance  *uint256.Int   `json:"balance"`
	CodeHash common.Hash    `json:"codeHash"`
}

// StateDB holds the mutable account state for one block-building or
// validation pass. It is not safe for concurrent use.
type StateDB struct {
	db        *database.Database
	accounts  map[common.Address]*Account
	snapshots []map[common.Address]*Account
}

func stateKey(root common.Hash) []byte {
	return append([]byte("state_"), root.Bytes()...)
}

// NewStateDB loads the account set committed under root. A zero root
// yields an empty state; any other unknown root is an error, since it
// means the chain references state the database never stored.
func NewStateDB(root common.Hash, db *database.Database) (*StateDB, error) {
	s := &StateDB{
		db:       db,
		accounts: make(map[common.Address]*Account),
	}
	if root == (common.Hash{}) || root == EmptyRoot() {
		return s, nil
	}
	data, err := db.Get(stateKey(root))
	if err != nil {
		return nil, fmt.Errorf("state root %s not found: %w", root.Hex(), err)
	}
	var records []accountRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corrupt state record for root %s: %w", root.Hex(), err)
	}
	for _, r := range records {
		s.accounts[r.Address] = &Account{
			Nonce:    r.Nonce,
			Balance:  r.Balance,
			CodeHash: r.CodeHash,
		}
	}
	return s, nil
}

// EmptyRoot is the root hash of a state with no accounts.
func EmptyRoot() common.Hash {
	data, _ := json.Marshal([]accountRecord{})
	return crypto.Keccak256Hash(data)
}

func (s *StateDB) getOrCreate(addr common.Address) *Account {
	acc, ok := s.accounts[addr]
	if !ok {
		acc = &Account{Balance: uint256.NewInt(0)}
		s.accounts[addr] = acc
	}
	return acc
}

func (s *StateDB) Exist(addr common.Address) bool {
	_, ok := s.accounts[addr]
	return ok
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if acc, ok := s.accounts[addr]; ok {
		return new(uint256.Int).Set(acc.Balance)
	}
	return uint256.NewInt(0)
}

func (s *StateDB) SetBalance(addr common.Address, balance *uint256.Int) {
	s.getOrCreate(addr).Balance = new(uint256.Int).Set(balance)
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	acc := s.getOrCreate(addr)
	acc.Balance = new(uint256.Int).Add(acc.Balance, amount)
}

// SubBalance debits amount and reports whether the balance was sufficient.
func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int) bool {
	acc := s.getOrCreate(addr)
	if acc.Balance.Lt(amount) {
		return false
	}
	acc.Balance = new(uint256.Int).Sub(acc.Balance, amount)
	return true
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	if acc, ok := s.accounts[addr]; ok {
		return acc.Nonce
	}
	return 0
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	s.getOrCreate(addr).Nonce = nonce
}

// Snapshot records the current account set and returns an identifier for
// RevertToSnapshot. Used to roll back the effects of a rejected transaction.
func (s *StateDB) Snapshot() int {
	snap := make(map[common.Address]*Account, len(s.accounts))
	for addr, acc := range s.accounts {
		snap[addr] = acc.copy()
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1
}

func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	s.accounts = s.snapshots[id]
	s.snapshots = s.snapshots[:id]
}

func (s *StateDB) serialize() []byte {
	records := make([]accountRecord, 0, len(s.accounts))
	for addr, acc := range s.accounts {
		records = append(records, accountRecord{
			Address:  addr,
			Nonce:    acc.Nonce,
			Balance:  acc.Balance,
			CodeHash: acc.CodeHash,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Address.Hex() < records[j].Address.Hex()
	})
	data, _ := json.Marshal(records)
	return data
}

// Root computes the hash of the current account set without persisting it.
func (s *StateDB) Root() common.Hash {
	return crypto.Keccak256Hash(s.serialize())
}

// Commit persists the current account set under its root hash into the
// given batch and returns the root. The caller decides when the batch is
// written, so state and block land atomically.
func (s *StateDB) Commit(batch *database.Batch) common.Hash {
	data := s.serialize()
	root := crypto.Keccak256Hash(data)
	batch.Put(stateKey(root), data)
	s.snapshots = nil
	return root
}

package core

import "errors"

var (
	// ErrStorage wraps database failures during canonical insertion.
	// Storage faults are fatal; the engine never retries them.
	ErrStorage = errors.New("storage fault")

	// ErrExecution wraps execution backend failures while building a block.
	ErrExecution = errors.New("execution fault")

	// ErrKnownBlock is returned when inserting a block already canonical.
	ErrKnownBlock = errors.New("block already known")

	// ErrUnknownParent is returned when a block does not extend the head.
	ErrUnknownParent = errors.New("block does not extend current head")

	// ErrKnownTransaction is returned when adding a duplicate transaction.
	ErrKnownTransaction = errors.New("transaction already in pool")

	// ErrPoolFull is returned when the pool is at capacity.
	ErrPoolFull = errors.New("transaction pool is full")

	// ErrMinerStopped is returned for triggers after shutdown or a fault.
	ErrMinerStopped = errors.New("sealing engine is not running")
)

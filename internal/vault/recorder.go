package vault

import (
	"github.com/tuxedo-ai/yvm/internal/state"
	"github.com/tuxedo-ai/yvm/internal/types"
)

// Recorder persists vault state and operation receipts. The engine writes a
// snapshot after every successful mutation and a receipt for every attempt,
// successful or not.
type Recorder interface {
	SaveSnapshot(snapshot types.VaultSnapshot) error
	SaveReceipt(receipt types.OperationReceipt) error
}

// StateRecorder persists through the global state package (PostgreSQL).
type StateRecorder struct{}

func (StateRecorder) SaveSnapshot(snapshot types.VaultSnapshot) error {
	return state.SaveVaultSnapshot(snapshot)
}

func (StateRecorder) SaveReceipt(receipt types.OperationReceipt) error {
	_, err := state.SaveOperationReceipt(receipt)
	return err
}

// NopRecorder discards snapshots and receipts. Used in simulation mode when
// no database is configured, and by tests.
type NopRecorder struct{}

func (NopRecorder) SaveSnapshot(types.VaultSnapshot) error   { return nil }
func (NopRecorder) SaveReceipt(types.OperationReceipt) error { return nil }

package domain

import (
	"time"

	"github.com/pendergraft/contraship/internal/storage"
)

// EntryStatus is the outcome of one contract in a run
type EntryStatus string

const (
	EntryOK     EntryStatus = "ok"
	EntryFailed EntryStatus = "failed"
)

// ReportEntry is the outcome for one contract
type ReportEntry struct {
	Contract             string      `json:"contract" yaml:"contract"`
	Action               Action      `json:"action" yaml:"action"`
	Address              string      `json:"address,omitempty" yaml:"address,omitempty"`
	TxHash               string      `json:"txHash,omitempty" yaml:"tx_hash,omitempty"`
	BlockNumber          int64       `json:"blockNumber,omitempty" yaml:"block_number,omitempty"`
	Verified             bool        `json:"verified" yaml:"verified"`
	VerificationAttempts int         `json:"verificationAttempts" yaml:"verification_attempts"`
	Status               EntryStatus `json:"status" yaml:"status"`
	Error                string      `json:"error,omitempty" yaml:"error,omitempty"`
	VerificationError    string      `json:"verificationError,omitempty" yaml:"verification_error,omitempty"`
}

// RunReport is the result of one orchestrator run on one chain
type RunReport struct {
	RunID      string        `json:"runId" yaml:"run_id"`
	ChainID    int64         `json:"chainId" yaml:"chain_id"`
	Network    string        `json:"network" yaml:"network"`
	StartedAt  time.Time     `json:"startedAt" yaml:"started_at"`
	FinishedAt time.Time     `json:"finishedAt" yaml:"finished_at"`
	Entries    []ReportEntry `json:"entries" yaml:"entries"`
}

// SummaryEntry is the condensed outcome for one contract
type SummaryEntry struct {
	Address  string `json:"address" yaml:"address"`
	Action   Action `json:"action" yaml:"action"`
	Verified bool   `json:"verified" yaml:"verified"`
}

// HasFailures reports whether any contract failed to deploy
func (r *RunReport) HasFailures() bool {
	for _, e := range r.Entries {
		if e.Status == EntryFailed {
			return true
		}
	}
	return false
}

// Summary maps each contract to its address, action and verification state
func (r *RunReport) Summary() map[string]SummaryEntry {
	out := make(map[string]SummaryEntry, len(r.Entries))
	for _, e := range r.Entries {
		out[e.Contract] = SummaryEntry{
			Address:  e.Address,
			Action:   e.Action,
			Verified: e.Verified,
		}
	}
	return out
}

// Entry returns the entry for a contract
func (r *RunReport) Entry(contract string) (ReportEntry, bool) {
	for _, e := range r.Entries {
		if e.Contract == contract {
			return e, true
		}
	}
	return ReportEntry{}, false
}

func entryFromRecord(e *ReportEntry, rec *storage.DeploymentRecord) {
	if rec == nil {
		return
	}
	e.Address = rec.Address
	e.TxHash = rec.TxHash
	e.BlockNumber = rec.BlockNumber
	e.Verified = rec.Verified
	e.VerificationAttempts = rec.VerificationAttempts
}

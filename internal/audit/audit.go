// Package audit implements the tamper-evident decision log. Every entry
// is bound to its predecessor by a SHA-256 hash chain over a canonical
// serialization, so retroactive edits are detectable by replaying the
// chain from the genesis sentinel. Entries are append-only for the life
// of the installation; the only sanctioned truncation is an explicit,
// itself-audited Reset that starts a new chain.
package audit

import "strings"

// Action describes what was done.
type Action string

const (
	ActionRunStarted      Action = "run_started"
	ActionStageCompleted  Action = "stage_completed"
	ActionRunFailed       Action = "run_failed"
	ActionIndexBuilt      Action = "index_built"
	ActionMappingOverride Action = "mapping_override"
	ActionExport          Action = "export"
	ActionChainReset      Action = "chain_reset"
)

// Well-known actors. Reviewer actions use the reviewer's own identity
// instead.
const (
	ActorSystem   = "system"
	ActorPipeline = "pipeline"
)

// GenesisHash is the prev_entry_hash of the first entry in a chain.
var GenesisHash = strings.Repeat("0", 64)

// Entry is one audit record. EntryHash covers PrevEntryHash and the
// canonical serialization of the remaining hashed fields; Payload is kept
// for human inspection but participates in the hash only through
// PayloadDigest.
type Entry struct {
	SequenceNumber int64          `json:"sequence_number"`
	Timestamp      string         `json:"timestamp"`
	Actor          string         `json:"actor"`
	Action         Action         `json:"action"`
	Payload        map[string]any `json:"payload,omitempty"`
	PayloadDigest  string         `json:"payload_digest"`
	PrevEntryHash  string         `json:"prev_entry_hash"`
	EntryHash      string         `json:"entry_hash"`
}

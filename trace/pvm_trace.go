package trace

import "github.com/coldforge/dbt64/common"

// BlockRecord is one JSONL line describing a single block translation,
// written when the engine is run with DBT64_DUMP_BLOCKS set. It mirrors the shape
// of the teacher's per-step trace record, but at block rather than
// single-instruction granularity: one record per call into the translator,
// not one per guest instruction.
type BlockRecord struct {
	GuestStart uint64 `json:"guestStart"`
	GuestEnd   uint64 `json:"guestEnd"` // exclusive
	HostBytes  int    `json:"hostBytes"`

	AlwaysVerify bool   `json:"alwaysVerify"`
	IntegrityHex string `json:"integrityHash,omitempty"`

	// InvalidatedCount counts how many previously-live blocks this
	// translation superseded (non-zero only for SMC re-translations).
	InvalidatedCount int `json:"invalidatedCount,omitempty"`

	// FellBackToInterpreter is set when Pass 0 hit an untranslatable
	// opcode and the block terminated early for interpreter fallback.
	FellBackToInterpreter bool `json:"fellBackToInterpreter,omitempty"`
}

func NewBlockRecord(start, end uint64, hostBytes int) *BlockRecord {
	return &BlockRecord{GuestStart: start, GuestEnd: end, HostBytes: hostBytes}
}

func (r *BlockRecord) SetIntegrityHash(h common.Hash) {
	r.IntegrityHex = h.Hex()
}

package mempool

import (
	"clobcore/internal/matching"

	"github.com/holiman/uint256"
)

// Status is a virtual transaction's lifecycle state (spec.md §3 "Virtual
// transaction").
type Status string

const (
	StatusPending   Status = "pending"
	StatusIncluded  Status = "included"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// PayloadKind names the command a transaction carries.
type PayloadKind string

const (
	PayloadSubmitOrder PayloadKind = "submit_order"
	PayloadCancelOrder PayloadKind = "cancel_order"
)

// Payload wraps exactly one of a submit or cancel command — the
// "submit_order or cancel_order command" of spec.md §3.
type Payload struct {
	Kind         PayloadKind             `json:"kind"`
	SubmitOrder  *matching.SubmitRequest `json:"submit_order,omitempty"`
	CancelOrder  *matching.CancelRequest `json:"cancel_order,omitempty"`
}

// Tx is a virtual transaction. Gas fields are wide unsigned integers so
// that effective-gas arithmetic never narrows them (spec.md §3).
type Tx struct {
	TxID                  string         `json:"tx_id"`
	Status                Status         `json:"status"`
	SubmittedAtMs         int64          `json:"submitted_at_ms"`
	IncludedBlockNumber   *uint64        `json:"included_block_number,omitempty"`
	ConfirmedBlockNumber  *uint64        `json:"confirmed_block_number,omitempty"`
	GasPrice              *uint256.Int   `json:"gas_price"`
	MaxPriorityFeePerGas  *uint256.Int   `json:"max_priority_fee_per_gas"`
	RequiredConfirmations uint64         `json:"required_confirmations"`
	Payload               Payload        `json:"payload"`
	Result                any            `json:"result,omitempty"`
	Error                 string         `json:"error,omitempty"`

	// submitSeq breaks ties between transactions submitted within the
	// same millisecond, preserving deterministic FIFO arrival order
	// without relying on submitted_at_ms resolution.
	submitSeq uint64
}

// EffectiveGas is the mempool's ordering key: gas_price +
// max_priority_fee_per_gas, computed with non-narrowing 256-bit
// arithmetic (spec.md §3, §4.5 "Include phase").
func (t *Tx) EffectiveGas() *uint256.Int {
	return new(uint256.Int).Add(t.GasPrice, t.MaxPriorityFeePerGas)
}

// clone returns an immutable deep copy safe to hand to callers (spec.md
// §4.5 "Snapshots returned to callers are immutable clones").
func (t *Tx) clone() *Tx {
	cp := *t
	if t.IncludedBlockNumber != nil {
		v := *t.IncludedBlockNumber
		cp.IncludedBlockNumber = &v
	}
	if t.ConfirmedBlockNumber != nil {
		v := *t.ConfirmedBlockNumber
		cp.ConfirmedBlockNumber = &v
	}
	if t.GasPrice != nil {
		cp.GasPrice = new(uint256.Int).Set(t.GasPrice)
	}
	if t.MaxPriorityFeePerGas != nil {
		cp.MaxPriorityFeePerGas = new(uint256.Int).Set(t.MaxPriorityFeePerGas)
	}
	return &cp
}

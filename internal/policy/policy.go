// Package policy computes refund amounts from the cancellation policy
// table. Pure functions, no state, no error path: every reason maps to a
// refund in [0, paid].
package policy

type RefundTable map[string]int // refund percentage by cancellation reason

type Refund struct {
	Amount int64
	Note   string
}

// ComputeRefund resolves a cancellation reason against the policy table.
// Unrecognized reasons refund nothing and say why.
func ComputeRefund(paid int64, reason string, table RefundTable) Refund {
	if paid < 0 {
		paid = 0
	}
	pct, ok := table[reason]
	if !ok {
		return Refund{Amount: 0, Note: "no refund: unrecognized cancellation reason " + reason}
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return Refund{
		Amount: paid * int64(pct) / 100,
		Note:   reason,
	}
}

// ComputeOverride applies an operator-supplied amount, clamped to [0, paid].
func ComputeOverride(paid, override int64) Refund {
	if paid < 0 {
		paid = 0
	}
	if override < 0 {
		override = 0
	}
	if override > paid {
		override = paid
	}
	return Refund{Amount: override, Note: "manual override"}
}

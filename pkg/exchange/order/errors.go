package order

import "github.com/pkg/errors"

// Error taxonomy. All client-facing failures wrap one of these sentinels;
// callers match with errors.Is.
var (
	// ErrInvalidParameters: malformed or inconsistent order fields.
	// Rejected at validation; never reaches the book.
	ErrInvalidParameters = errors.New("invalid order parameters")

	// ErrSelfTradeRejected: the same account would be on both sides of a match
	ErrSelfTradeRejected = errors.New("self trade rejected")

	// ErrInsufficientLiquidity: no counter-side depth for an aggressive
	// order that cannot rest
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrRiskLimitExceeded: the pre-trade risk collaborator declined
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")

	// ErrOrderNotFound: unknown order id
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyTerminal: the order already reached a terminal state
	ErrAlreadyTerminal = errors.New("order already terminal")

	// ErrGroupInconsistent: a linked-order group violated its invariant.
	// Fatal for the group; it is force-cancelled to fail safe.
	ErrGroupInconsistent = errors.New("linked order group inconsistent")
)

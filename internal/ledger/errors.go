package ledger

import "errors"

// Layout errors
var (
	ErrNoPrimaryAsset  = errors.New("ledger primary asset is required")
	ErrInvalidSlotKind = errors.New("invalid slot kind")
)

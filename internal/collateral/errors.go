package collateral

import "errors"

// Collateral errors.
var (
	// ErrInvalidCollateralState is returned when a required balance or coupon
	// is missing or non-positive. Never treated as zero.
	ErrInvalidCollateralState = errors.New("invalid collateral state")

	// ErrInvalidScenario is returned when a period's assumptions are out of range.
	ErrInvalidScenario = errors.New("invalid scenario input")
)

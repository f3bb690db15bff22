package deal

import "errors"

// Deal structure errors. All are detected at compile time, before any period runs.
var (
	// ErrInvalidWaterfallReference is returned when a step, gate, fee base,
	// notional or schedule names an undefined tranche, fee, group or trigger.
	ErrInvalidWaterfallReference = errors.New("invalid waterfall reference")

	// ErrInvalidTriggerConfig is returned for an unknown metric or comparator,
	// a cure threshold below one, or a VARIABLE trigger whose variable is missing or
	// neither computed nor declared by the deal.
	ErrInvalidTriggerConfig = errors.New("invalid trigger config")

	// ErrInvalidDeal is returned for internally inconsistent structure.
	ErrInvalidDeal = errors.New("invalid deal definition")
)

package allocation

import "errors"

// ErrConservation is returned when disbursements plus the ending reserve do
// not equal available cash to the cent. Indicates an engine defect, never a
// shortfall: a lower-priority step receiving less than it is owed is normal.
var ErrConservation = errors.New("cash conservation violated")

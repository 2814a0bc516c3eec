package proposal

import "fmt"

// centTolerance absorbs floating-point noise at the bounds. A price a
// full cent outside either bound is rejected.
const centTolerance = 0.005

// CheckPricing enforces the pricing invariant: the stated worth is the
// floor and a third of the stacked deliverable value is the ceiling.
func CheckPricing(statedWorth float64, out Output) error {
	price := out.SuggestedPriceUSD
	floor := statedWorth
	ceiling := out.EffectiveTotal() / 3

	if price < floor-centTolerance {
		return fmt.Errorf("%w: suggested price %.2f below stated worth %.2f", ErrContractViolation, price, floor)
	}
	if price > ceiling+centTolerance {
		return fmt.Errorf("%w: suggested price %.2f above value ceiling %.2f", ErrContractViolation, price, ceiling)
	}
	return nil
}

package ledger

import "fmt"

// PriceTable maps (service, operation) pairs to token costs. It is built
// once at startup and never mutated afterwards, so the amount debited at
// task creation always equals the amount a later refund restores.
type PriceTable struct {
	prices map[string]int64
}

// defaultPrices holds the built-in price list, keyed "service.operation".
var defaultPrices = map[string]int64{
	"replicate.image":   10,
	"replicate.upscale": 5,
	"luma.video":        50,
	"stability.image":   8,
	"stability.upscale": 5,
}

// NewPriceTable creates a price table from the defaults plus the given
// overrides (same "service.operation" keys).
func NewPriceTable(overrides map[string]int64) *PriceTable {
	prices := make(map[string]int64, len(defaultPrices))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			prices[k] = v
		}
	}
	return &PriceTable{prices: prices}
}

// Cost returns the token cost of one operation of a service.
func (t *PriceTable) Cost(service, operation string) (int64, error) {
	cost, ok := t.prices[service+"."+operation]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrUnpricedOperation, service, operation)
	}
	return cost, nil
}

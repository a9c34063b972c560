// Package model defines the shared domain types for catalog items,
// competitor observations, scrape jobs, and price recommendations.
package model

import (
	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"
)

// CatalogItem represents one product in the merchant's own catalog.
// Items are immutable for the duration of an optimization run.
type CatalogItem struct {
	ID           string  `json:"id" csv:"id"`
	Name         string  `json:"name" csv:"name"`
	CurrentPrice float64 `json:"current_price" csv:"current_price"`
	UnitCost     float64 `json:"unit_cost" csv:"unit_cost"`
	Currency     string  `json:"currency" csv:"currency"`
	Category     string  `json:"category,omitempty" csv:"category,omitempty"`
	Brand        string  `json:"brand,omitempty" csv:"brand,omitempty"`
}

// Validate checks structural soundness of a catalog item. A unit cost above
// the current price is allowed here (the merchant may knowingly sell at a
// loss today); the optimizer rejects it separately.
func (c CatalogItem) Validate() error {
	if c.ID == "" {
		return eris.New("catalog item: empty id")
	}
	if c.Name == "" {
		return eris.Errorf("catalog item %s: empty name", c.ID)
	}
	if c.CurrentPrice <= 0 {
		return eris.Errorf("catalog item %s: current price must be positive", c.ID)
	}
	if c.UnitCost < 0 {
		return eris.Errorf("catalog item %s: negative unit cost", c.ID)
	}
	if _, err := currency.ParseISO(c.Currency); err != nil {
		return eris.Wrapf(err, "catalog item %s: invalid currency %q", c.ID, c.Currency)
	}
	return nil
}

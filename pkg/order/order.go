// Package order turns a finished call transcript into a structured
// order bound to catalog reference ids.
package order

import (
	"fmt"
	"math"
	"strings"

	"github.com/orderline/orderline/pkg/menu"
)

// Item is one extracted order line. RefID must name an item in the
// restaurant's published catalog.
type Item struct {
	RefID    string  `json:"id"`
	Name     string  `json:"item"`
	Quantity int     `json:"quantity"`
	Cost     float64 `json:"cost"`
}

// Order is the structured result of a call.
type Order struct {
	Items []Item  `json:"items"`
	Total float64 `json:"total_bill_amount"`
}

// ValidationError reports an extracted order that does not line up with
// the catalog. It is distinct from transport failures so callers can
// tell "the model hallucinated" apart from "the request failed".
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid order: " + strings.Join(e.Problems, "; ")
}

// Validate checks every extracted line against the catalog: the
// reference id must exist, quantities must be at least one, and all
// amounts must be non-negative finite numbers.
func Validate(o *Order, catalog *menu.Catalog) error {
	if o == nil {
		return &ValidationError{Problems: []string{"order is empty"}}
	}
	var problems []string
	for i, item := range o.Items {
		if _, ok := catalog.Lookup(item.RefID); !ok {
			problems = append(problems, fmt.Sprintf("items[%d]: unknown catalog id %q", i, item.RefID))
		}
		if item.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("items[%d]: quantity %d is below 1", i, item.Quantity))
		}
		if !validAmount(item.Cost) {
			problems = append(problems, fmt.Sprintf("items[%d]: cost %v is not a valid amount", i, item.Cost))
		}
	}
	if !validAmount(o.Total) {
		problems = append(problems, fmt.Sprintf("total %v is not a valid amount", o.Total))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

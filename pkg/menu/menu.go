// Package menu fetches a restaurant's published catalog from the
// unified restaurant service and renders it for the voice agent.
package menu

import (
	"fmt"
	"strings"
)

// Item is one orderable menu entry. RefID is the stable catalog
// identifier that extracted orders must reference.
type Item struct {
	RefID       string
	Name        string
	Description string
	DietType    string
	Price       float64
	Currency    string
	Category    string
}

// Category groups published items under their menu section name.
type Category struct {
	Name  string
	Items []Item
}

// Catalog is the published menu for one restaurant.
type Catalog struct {
	Categories []Category
}

// Items returns the catalog flattened in menu order.
func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	var out []Item
	for _, cat := range c.Categories {
		out = append(out, cat.Items...)
	}
	return out
}

// Lookup finds an item by its catalog reference id.
func (c *Catalog) Lookup(refID string) (Item, bool) {
	refID = strings.TrimSpace(refID)
	if c == nil || refID == "" {
		return Item{}, false
	}
	for _, cat := range c.Categories {
		for _, item := range cat.Items {
			if item.RefID == refID {
				return item, true
			}
		}
	}
	return Item{}, false
}

// PromptText renders the catalog the way the agent reads it to callers:
// one section per category, one line per item with diet type and price.
func (c *Catalog) PromptText() string {
	if c == nil {
		return ""
	}
	sections := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		lines := make([]string, 0, len(cat.Items)+1)
		lines = append(lines, cat.Name)
		for _, item := range cat.Items {
			lines = append(lines, fmt.Sprintf("  - %s (%s) - $%.2f %s", item.Name, item.DietType, item.Price, item.Currency))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

// ExtractionText renders items with their reference ids for the order
// extraction prompt, so the model can bind spoken names to catalog ids.
func (c *Catalog) ExtractionText() string {
	if c == nil {
		return ""
	}
	var lines []string
	for _, item := range c.Items() {
		lines = append(lines, fmt.Sprintf("- id=%s name=%q price=%.2f %s category=%q", item.RefID, item.Name, item.Price, item.Currency, item.Category))
	}
	return strings.Join(lines, "\n")
}

// Package filter is the client side of category filtering: it maps categories
// to filter tags, tracks per-category filter state and calls the
// filter-recommendations endpoint.
package filter

import "strings"

type optionRule struct {
	match   []string
	options []string
}

// Rules are tried in order; the first whose substring appears in the
// category name wins.
var optionRules = []optionRule{
	{match: []string{"grocery", "supermarket"}, options: []string{"Organic", "24/7", "Pickup Available", "Budget-Friendly", "Local", "High Rated"}},
	{match: []string{"pharmac", "drugstore"}, options: []string{"24/7", "Drive-Thru", "Local", "High Rated"}},
	{match: []string{"gym", "fitness"}, options: []string{"24/7", "Classes", "Budget-Friendly", "High Rated"}},
	{match: []string{"restaurant", "dining"}, options: []string{"Vegetarian", "Takeout", "Budget-Friendly", "Local", "High Rated"}},
	{match: []string{"coffee", "cafe"}, options: []string{"Wi-Fi", "Local", "Budget-Friendly", "High Rated"}},
	{match: []string{"doctor", "clinic", "medical"}, options: []string{"Accepting New Patients", "Walk-In", "Nearby", "High Rated"}},
}

var defaultOptions = []string{"High Rated", "Nearby", "Budget-Friendly", "Local"}

// OptionsFor returns the filter tags offered for a category.
func OptionsFor(category string) []string {
	name := strings.ToLower(category)
	for _, rule := range optionRules {
		for _, m := range rule.match {
			if strings.Contains(name, m) {
				return append([]string(nil), rule.options...)
			}
		}
	}
	return append([]string(nil), defaultOptions...)
}

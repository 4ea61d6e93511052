package model

import (
	"fmt"
	"strings"
)

// Category is a spending category assigned by merchant rules.
type Category string

const (
	CategoryMortgage      Category = "MORTGAGE"
	CategoryUtility       Category = "UTILITY"
	CategoryCar           Category = "CAR"
	CategoryGas           Category = "GAS"
	CategoryPhone         Category = "PHONE"
	CategorySubscriptions Category = "SUBSCRIPTIONS"
	CategoryGroceries     Category = "GROCERIES"
	CategoryRestaurants   Category = "RESTAURANTS"
	CategoryCoffee        Category = "COFFEE"
	CategoryShopping      Category = "SHOPPING"
	CategoryTravel        Category = "TRAVEL"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategoryHealth        Category = "HEALTH"
	CategoryIncome        Category = "INCOME"
	CategoryTransfer      Category = "TRANSFER"
	CategoryOther         Category = "OTHER"
	CategoryUncategorized Category = "UNCATEGORIZED"
)

var categories = map[Category]bool{
	CategoryMortgage:      true,
	CategoryUtility:       true,
	CategoryCar:           true,
	CategoryGas:           true,
	CategoryPhone:         true,
	CategorySubscriptions: true,
	CategoryGroceries:     true,
	CategoryRestaurants:   true,
	CategoryCoffee:        true,
	CategoryShopping:      true,
	CategoryTravel:        true,
	CategoryEntertainment: true,
	CategoryHealth:        true,
	CategoryIncome:        true,
	CategoryTransfer:      true,
	CategoryOther:         true,
	CategoryUncategorized: true,
}

// ParseCategory converts s to a known Category, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !categories[c] {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

package pack

import (
	"encoding/json"
	"strings"
)

type Category string

const (
	CategoryPacking     Category = "Packing"
	CategoryShelter     Category = "Shelter"
	CategorySleep       Category = "Sleep"
	CategoryClothing    Category = "Clothing"
	CategoryKitchen     Category = "Kitchen"
	CategoryElectronics Category = "Electronics"
	CategoryHygiene     Category = "Hygiene"
	CategoryMisc        Category = "Misc"
)

// Categories lists the canonical categories in display order.
var Categories = []Category{
	CategoryPacking,
	CategoryShelter,
	CategorySleep,
	CategoryClothing,
	CategoryKitchen,
	CategoryElectronics,
	CategoryHygiene,
	CategoryMisc,
}

// legacyCategories maps values written by older clients onto canonical categories.
var legacyCategories = map[string]Category{
	"Cooking":    CategoryKitchen,
	"Food":       CategoryKitchen,
	"Food & Gas": CategoryKitchen,
	"Food&Gas":   CategoryKitchen,
}

// NormalizeCategory returns the canonical category for a stored value.
// Unknown and empty values fall back to Misc.
func NormalizeCategory(raw string) Category {
	value := strings.TrimSpace(raw)
	for _, c := range Categories {
		if string(c) == value {
			return c
		}
	}
	if c, ok := legacyCategories[value]; ok {
		return c
	}
	return CategoryMisc
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = NormalizeCategory(raw)
	return nil
}

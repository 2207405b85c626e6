// Package content holds the stateless transforms that turn a raw product record
// into content sections and pages. Nothing in here touches the bus or the queue.
package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidInput is returned when a raw record cannot be normalized.
var ErrInvalidInput = errors.New("invalid product input")

// SkinType is one of the supported skin types.
type SkinType string

const (
	SkinOily        SkinType = "Oily"
	SkinDry         SkinType = "Dry"
	SkinCombination SkinType = "Combination"
	SkinSensitive   SkinType = "Sensitive"
	SkinNormal      SkinType = "Normal"
)

var allSkinTypes = []SkinType{SkinOily, SkinDry, SkinCombination, SkinSensitive, SkinNormal}

// Product is the normalized product record every generator works from.
type Product struct {
	ID             string     `json:"product_id,omitempty"`
	Name           string     `json:"name"`
	Concentration  string     `json:"concentration,omitempty"`
	SkinTypes      []SkinType `json:"skin_types"`
	KeyIngredients []string   `json:"key_ingredients"`
	Benefits       []string   `json:"benefits"`
	Usage          string     `json:"usage_instructions"`
	SideEffects    string     `json:"side_effects,omitempty"`
	Price          float64    `json:"price"`
	Currency       string     `json:"currency"`
	Category       string     `json:"category"`
}

// fieldAliases maps lower-cased raw keys onto canonical field names.
var fieldAliases = map[string]string{
	"product name":       "name",
	"product_name":       "name",
	"productname":        "name",
	"name":               "name",
	"concentration":      "concentration",
	"skin type":          "skin_types",
	"skin_type":          "skin_types",
	"skintype":           "skin_types",
	"skin_types":         "skin_types",
	"key ingredients":    "key_ingredients",
	"key_ingredients":    "key_ingredients",
	"keyingredients":     "key_ingredients",
	"ingredients":        "key_ingredients",
	"benefits":           "benefits",
	"how to use":         "usage_instructions",
	"how_to_use":         "usage_instructions",
	"usage":              "usage_instructions",
	"usage_instructions": "usage_instructions",
	"side effects":       "side_effects",
	"side_effects":       "side_effects",
	"sideeffects":        "side_effects",
	"price":              "price",
	"currency":           "currency",
	"product_id":         "product_id",
	"id":                 "product_id",
	"category":           "category",
}

// Normalize converts a raw record with loosely named keys into a Product.
// The record must carry a non-empty product name.
func Normalize(raw map[string]any) (Product, error) {
	if len(raw) == 0 {
		return Product{}, fmt.Errorf("%w: empty record", ErrInvalidInput)
	}

	fields := make(map[string]any, len(raw))
	for key, value := range raw {
		k := strings.ToLower(strings.TrimSpace(key))
		if canonical, ok := fieldAliases[k]; ok {
			k = canonical
		}
		fields[k] = value
	}

	name := strings.TrimSpace(stringField(fields, "name"))
	if name == "" {
		return Product{}, fmt.Errorf("%w: missing product name", ErrInvalidInput)
	}

	price, err := parsePrice(fields["price"])
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	p := Product{
		ID:             strings.TrimSpace(stringField(fields, "product_id")),
		Name:           name,
		Concentration:  strings.TrimSpace(stringField(fields, "concentration")),
		SkinTypes:      parseSkinTypes(listField(fields, "skin_types")),
		KeyIngredients: listField(fields, "key_ingredients"),
		Benefits:       listField(fields, "benefits"),
		Usage:          strings.TrimSpace(stringField(fields, "usage_instructions")),
		SideEffects:    strings.TrimSpace(stringField(fields, "side_effects")),
		Price:          price,
		Currency:       parseCurrency(fields),
		Category:       strings.TrimSpace(stringField(fields, "category")),
	}
	if p.Category == "" {
		p.Category = "skincare"
	}
	return p, nil
}

// DefaultComparisonProduct is the fictional product used when a run has no
// explicit comparison record.
func DefaultComparisonProduct() Product {
	return Product{
		ID:             "PROD-FICTIONAL-001",
		Name:           "RadiantGlow Niacinamide Serum",
		Concentration:  "5% Niacinamide",
		SkinTypes:      []SkinType{SkinOily, SkinSensitive, SkinNormal},
		KeyIngredients: []string{"Niacinamide", "Zinc PCA", "Hyaluronic Acid"},
		Benefits:       []string{"Pore minimizing", "Oil control", "Brightening"},
		Usage:          "Apply 3-4 drops morning and evening on cleansed skin",
		SideEffects:    "May cause slight redness in first-time users",
		Price:          599,
		Currency:       "INR",
		Category:       "skincare",
	}
}

// SampleProduct is the record the CLI seeds when no product file is given.
func SampleProduct() map[string]any {
	return map[string]any{
		"Product Name":    "GlowBoost Vitamin C Serum",
		"Concentration":   "10% Vitamin C",
		"Skin Type":       "Oily, Combination",
		"Key Ingredients": "Vitamin C, Hyaluronic Acid",
		"Benefits":        "Brightening, Fades dark spots",
		"How to Use":      "Apply 2–3 drops in the morning before sunscreen",
		"Side Effects":    "Mild tingling for sensitive skin",
		"Price":           "₹699",
	}
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// listField accepts either a comma separated string or a JSON array.
func listField(fields map[string]any, key string) []string {
	var parts []string
	switch v := fields[key].(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSkinTypes(raw []string) []SkinType {
	out := make([]SkinType, 0, len(raw))
	for _, r := range raw {
		for _, st := range allSkinTypes {
			if strings.EqualFold(string(st), r) {
				out = append(out, st)
				break
			}
		}
	}
	return out
}

func parsePrice(v any) (float64, error) {
	switch p := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return p, nil
	case int:
		return float64(p), nil
	case string:
		cleaned := strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", ",", "").Replace(p)
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable price %q", p)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported price type %T", v)
	}
}

func parseCurrency(fields map[string]any) string {
	if c := strings.TrimSpace(stringField(fields, "currency")); c != "" {
		return strings.ToUpper(c)
	}
	price := stringField(fields, "price")
	switch {
	case strings.Contains(price, "$"):
		return "USD"
	case strings.Contains(price, "€"):
		return "EUR"
	case strings.Contains(price, "£"):
		return "GBP"
	default:
		return "INR"
	}
}

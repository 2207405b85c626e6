package content

import (
	"fmt"
	"strings"
)

// QuestionCategory groups generated questions.
type QuestionCategory string

const (
	CategoryInformational QuestionCategory = "informational"
	CategorySafety        QuestionCategory = "safety"
	CategoryUsage         QuestionCategory = "usage"
	CategoryPurchase      QuestionCategory = "purchase"
	CategoryComparison    QuestionCategory = "comparison"
	CategoryIngredients   QuestionCategory = "ingredients"
	CategoryEffectiveness QuestionCategory = "effectiveness"
	CategorySuitability   QuestionCategory = "suitability"
)

// Categories lists every category in generation order.
var Categories = []QuestionCategory{
	CategoryInformational,
	CategorySafety,
	CategoryUsage,
	CategoryPurchase,
	CategoryComparison,
	CategoryIngredients,
	CategoryEffectiveness,
	CategorySuitability,
}

// Question is one generated user question. Lower Priority sorts first.
type Question struct {
	ID           string           `json:"question_id"`
	Text         string           `json:"question"`
	Category     QuestionCategory `json:"category"`
	Answer       string           `json:"answer"`
	SourceFields []string         `json:"source_fields"`
	Priority     int              `json:"priority"`
}

// maxPerCategory caps how many templates a category contributes.
const maxPerCategory = 3

var questionTemplates = map[QuestionCategory][]string{
	CategoryInformational: {
		"What is %s?",
		"What does %s do?",
		"What makes %s unique?",
		"Is %s suitable for daily use?",
	},
	CategorySafety: {
		"Is %s safe to use?",
		"Are there any side effects of using %s?",
		"Can I use %s if I have sensitive skin?",
		"Should I do a patch test before using %s?",
	},
	CategoryUsage: {
		"How do I use %s?",
		"When should I apply %s?",
		"How much %s should I use?",
		"Can I use %s with other products?",
	},
	CategoryPurchase: {
		"What is the price of %s?",
		"Is %s worth the price?",
		"Where can I buy %s?",
	},
	CategoryComparison: {
		"How does %s compare to other serums?",
		"Is %s better than other Vitamin C serums?",
	},
	CategoryIngredients: {
		"What are the key ingredients in %s?",
		"What is the concentration of Vitamin C in %s?",
		"Does %s contain Hyaluronic Acid?",
	},
	CategoryEffectiveness: {
		"How long does it take to see results from %s?",
		"Does %s really work for brightening?",
		"Can %s help with dark spots?",
	},
	CategorySuitability: {
		"Is %s suitable for oily skin?",
		"Can I use %s if I have combination skin?",
		"Who should use %s?",
	},
}

var sourceFields = map[QuestionCategory][]string{
	CategoryInformational: {"name", "benefits", "key_ingredients"},
	CategorySafety:        {"side_effects", "skin_types"},
	CategoryUsage:         {"usage_instructions"},
	CategoryPurchase:      {"price", "currency"},
	CategoryComparison:    {"name", "key_ingredients", "benefits", "price"},
	CategoryIngredients:   {"key_ingredients", "concentration"},
	CategoryEffectiveness: {"benefits"},
	CategorySuitability:   {"skin_types", "side_effects"},
}

var categoryPriority = map[QuestionCategory]int{
	CategoryUsage:         1,
	CategoryInformational: 2,
	CategorySafety:        3,
	CategoryEffectiveness: 4,
	CategoryIngredients:   5,
	CategorySuitability:   6,
	CategoryPurchase:      7,
	CategoryComparison:    8,
}

// GenerateQuestions produces the categorized question set for p. Templates that
// mention a specific ingredient, skin type or benefit are only used when the
// product carries it.
func GenerateQuestions(p Product) []Question {
	var out []Question
	for _, cat := range Categories {
		n := 0
		for _, tmpl := range questionTemplates[cat] {
			if n == maxPerCategory {
				break
			}
			if !relevant(tmpl, p) {
				continue
			}
			out = append(out, Question{
				ID:           fmt.Sprintf("Q%d", len(out)+1),
				Text:         fmt.Sprintf(tmpl, p.Name),
				Category:     cat,
				Answer:       draftAnswer(cat, p),
				SourceFields: sourceFields[cat],
				Priority:     categoryPriority[cat] + n,
			})
			n++
		}
	}
	return out
}

func relevant(tmpl string, p Product) bool {
	lower := strings.ToLower(tmpl)
	switch {
	case strings.Contains(lower, "vitamin c"):
		return containsFold(p.KeyIngredients, "vitamin c")
	case strings.Contains(lower, "hyaluronic"):
		return containsFold(p.KeyIngredients, "hyaluronic")
	case strings.Contains(lower, "oily"):
		return hasSkinType(p, SkinOily)
	case strings.Contains(lower, "combination"):
		return hasSkinType(p, SkinCombination)
	case strings.Contains(lower, "brightening"), strings.Contains(lower, "dark spots"):
		for _, b := range p.Benefits {
			if l := strings.ToLower(b); l == "brightening" || l == "fades dark spots" {
				return true
			}
		}
		return false
	}
	return true
}

func containsFold(list []string, needle string) bool {
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func hasSkinType(p Product, st SkinType) bool {
	for _, s := range p.SkinTypes {
		if s == st {
			return true
		}
	}
	return false
}

// draftAnswer is the product-only answer; the FAQ page replaces it with a
// block-derived answer where one exists.
func draftAnswer(cat QuestionCategory, p Product) string {
	switch cat {
	case CategoryInformational:
		return fmt.Sprintf("%s is a skincare product featuring %s for %s.", p.Name,
			strings.Join(p.KeyIngredients, ", "), strings.ToLower(strings.Join(p.Benefits, ", ")))
	case CategorySafety:
		if p.SideEffects != "" {
			return strings.TrimSuffix(p.SideEffects, ".") + ". Always perform a patch test before first use."
		}
		return "This product is generally safe for use. Perform a patch test before first use."
	case CategoryUsage:
		return orDefault(p.Usage, "Please refer to the product label for usage instructions.")
	case CategoryPurchase:
		return fmt.Sprintf("%s is priced at %s.", p.Name, FormatPrice(p.Price, p.Currency))
	case CategoryIngredients:
		return "Key ingredients include " + strings.Join(p.KeyIngredients, ", ") + "."
	case CategoryEffectiveness:
		return fmt.Sprintf("%s helps with %s.", p.Name, strings.ToLower(strings.Join(p.Benefits, ", ")))
	case CategorySuitability:
		names := make([]string, len(p.SkinTypes))
		for i, st := range p.SkinTypes {
			names[i] = string(st)
		}
		return fmt.Sprintf("%s is formulated for %s skin types.", p.Name, strings.Join(names, ", "))
	case CategoryComparison:
		return "For detailed comparisons, please see our comparison page."
	}
	return "Please refer to the product information for " + p.Name + "."
}

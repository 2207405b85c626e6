package content

import (
	"fmt"
	"strings"
)

// Page is one rendered output document.
type Page struct {
	Type     string `json:"page_type"`
	Title    string `json:"title"`
	Template string `json:"template_used"`
	Content  any    `json:"content"`
}

// Inputs is everything a template can render from.
type Inputs struct {
	Product   Product    `json:"product"`
	Questions []Question `json:"questions"`
	Blocks    Blocks     `json:"blocks"`
}

// Assemble renders the page named by t.
func Assemble(t Template, in Inputs) (Page, error) {
	if !t.HasBlocks(in.Blocks) {
		return Page{}, fmt.Errorf("%w: template %s is missing required blocks", ErrInvalidInput, t.Name)
	}
	switch t.Name {
	case PageFAQ:
		c := renderFAQ(in)
		return Page{Type: t.Name, Title: c.Title, Template: t.Name, Content: c}, nil
	case PageProduct:
		c := renderProduct(in)
		return Page{Type: t.Name, Title: c.Title, Template: t.Name, Content: c}, nil
	case PageComparison:
		c := renderComparison(*in.Blocks.Comparison)
		return Page{Type: t.Name, Title: c.Title, Template: t.Name, Content: c}, nil
	default:
		return Page{}, fmt.Errorf("unknown template %q", t.Name)
	}
}

// FAQEntry is one rendered question and answer.
type FAQEntry struct {
	ID       string           `json:"id"`
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Category QuestionCategory `json:"category"`
	Priority int              `json:"priority"`
}

// QuickLink points at one FAQ category.
type QuickLink struct {
	Category QuestionCategory `json:"category"`
	Label    string           `json:"label"`
	Count    int              `json:"count"`
}

// FAQContent is the body of the faq page.
type FAQContent struct {
	Title          string                          `json:"page_title"`
	ProductName    string                          `json:"product_name"`
	TotalQuestions int                             `json:"total_questions"`
	Entries        []FAQEntry                      `json:"faq_entries"`
	ByCategory     map[QuestionCategory][]FAQEntry `json:"faqs_by_category"`
	QuickLinks     []QuickLink                     `json:"quick_links"`
	UsageSummary   string                          `json:"usage_summary"`
	SafetySummary  string                          `json:"safety_summary"`
}

var categoryLabels = map[QuestionCategory]string{
	CategoryInformational: "General Information",
	CategoryUsage:         "How to Use",
	CategorySafety:        "Safety & Precautions",
	CategoryPurchase:      "Pricing & Purchase",
	CategoryComparison:    "Comparisons",
	CategoryIngredients:   "Ingredients",
	CategoryEffectiveness: "Results & Effectiveness",
	CategorySuitability:   "Skin Type Suitability",
}

func renderFAQ(in Inputs) FAQContent {
	name := in.Product.Name
	c := FAQContent{
		Title:         "Frequently Asked Questions - " + name,
		ProductName:   name,
		Entries:       make([]FAQEntry, 0, len(in.Questions)),
		ByCategory:    map[QuestionCategory][]FAQEntry{},
		QuickLinks:    []QuickLink{},
		UsageSummary:  in.Blocks.Usage.QuickGuide,
		SafetySummary: in.Blocks.Safety.Summary,
	}
	for i, q := range in.Questions {
		e := FAQEntry{
			ID:       fmt.Sprintf("faq-%d", i+1),
			Question: q.Text,
			Answer:   blockAnswer(q, in.Blocks, name),
			Category: q.Category,
			Priority: q.Priority,
		}
		c.Entries = append(c.Entries, e)
		c.ByCategory[q.Category] = append(c.ByCategory[q.Category], e)
	}
	c.TotalQuestions = len(c.Entries)
	for _, cat := range Categories {
		if n := len(c.ByCategory[cat]); n > 0 {
			c.QuickLinks = append(c.QuickLinks, QuickLink{Category: cat, Label: categoryLabels[cat], Count: n})
		}
	}
	return c
}

func blockAnswer(q Question, b Blocks, name string) string {
	switch q.Category {
	case CategoryUsage:
		return orDefault(b.Usage.QuickGuide, b.Usage.Text)
	case CategorySafety:
		return orDefault(b.Safety.Summary, b.Safety.SideEffectsText)
	case CategoryIngredients:
		if len(b.Ingredients.List) > 0 {
			return fmt.Sprintf("%s contains %s.", name, strings.Join(b.Ingredients.List, ", "))
		}
	case CategoryInformational:
		if b.Benefits.Summary != "" {
			return b.Benefits.Summary
		}
	case CategoryPurchase:
		return fmt.Sprintf("%s is priced at %s. %s", name, b.Pricing.Formatted, b.Pricing.ValueProposition)
	case CategoryEffectiveness:
		if len(b.Benefits.List) > 0 {
			return fmt.Sprintf("%s helps with %s.", name, strings.ToLower(strings.Join(b.Benefits.List, ", ")))
		}
		return name + " is formulated for effective results."
	case CategorySuitability:
		if len(b.Safety.SuitableFor) > 0 {
			return fmt.Sprintf("%s is suitable for %s skin types.", name, strings.ToLower(strings.Join(b.Safety.SuitableFor, ", ")))
		}
		return "Please refer to the product label for skin type recommendations."
	case CategoryComparison:
		if b.Comparison != nil {
			return b.Comparison.Summary
		}
	}
	return orDefault(q.Answer, "Please refer to the product information for "+name+".")
}

// KeyFeature is one highlight on the product page hero.
type KeyFeature struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Hero is the top of the product page.
type Hero struct {
	ProductName string   `json:"product_name"`
	Headline    string   `json:"headline"`
	Tagline     string   `json:"tagline"`
	Price       string   `json:"price"`
	CTA         PriceCTA `json:"cta"`
}

// ProductContent is the body of the product page.
type ProductContent struct {
	Title           string           `json:"page_title"`
	MetaDescription string           `json:"meta_description"`
	Hero            Hero             `json:"hero"`
	KeyFeatures     []KeyFeature     `json:"key_features"`
	Benefits        BenefitsBlock    `json:"benefits_section"`
	Ingredients     IngredientsBlock `json:"ingredients_section"`
	Usage           UsageBlock       `json:"usage_section"`
	Safety          SafetyBlock      `json:"safety_section"`
	Pricing         PricingBlock     `json:"pricing_section"`
}

func renderProduct(in Inputs) ProductContent {
	b := in.Blocks
	name := in.Product.Name

	benefits := "skincare"
	if n := len(b.Benefits.List); n > 0 {
		benefits = strings.ToLower(strings.Join(b.Benefits.List[:min(n, 2)], ", "))
	}

	c := ProductContent{
		Title:           name,
		MetaDescription: fmt.Sprintf("Shop %s for %s. %s. Free shipping available.", name, benefits, b.Pricing.Formatted),
		Hero: Hero{
			ProductName: name,
			Headline:    b.Benefits.Headline,
			Tagline:     b.Benefits.Summary,
			Price:       b.Pricing.Formatted,
			CTA:         b.Pricing.CTA,
		},
		KeyFeatures: []KeyFeature{},
		Benefits:    b.Benefits,
		Ingredients: b.Ingredients,
		Usage:       b.Usage,
		Safety:      b.Safety,
		Pricing:     b.Pricing,
	}
	if b.Ingredients.Concentration != "" {
		c.KeyFeatures = append(c.KeyFeatures, KeyFeature{Icon: "formula", Label: "Concentration", Value: b.Ingredients.Concentration})
	}
	if len(b.Safety.SuitableFor) > 0 {
		c.KeyFeatures = append(c.KeyFeatures, KeyFeature{Icon: "skin", Label: "Suitable For", Value: strings.Join(b.Safety.SuitableFor, ", ")})
	}
	if b.Benefits.Primary != "" {
		c.KeyFeatures = append(c.KeyFeatures, KeyFeature{Icon: "star", Label: "Key Benefit", Value: b.Benefits.Primary})
	}
	if b.Usage.Timing != "" {
		c.KeyFeatures = append(c.KeyFeatures, KeyFeature{Icon: "clock", Label: "Best Used", Value: strings.TrimPrefix(b.Usage.Timing, "in the ")})
	}
	return c
}

// ComparisonContent is the body of the comparison page.
type ComparisonContent struct {
	Title           string          `json:"page_title"`
	MetaDescription string          `json:"meta_description"`
	Subtitle        string          `json:"subtitle"`
	Table           []FeatureRow    `json:"comparison_table"`
	Comparison      ComparisonBlock `json:"comparison"`
	Recommendation  Recommendation  `json:"recommendation"`
}

// Recommendation says when to pick which product.
type Recommendation struct {
	Summary string   `json:"summary"`
	ChooseA []string `json:"choose_product_a_if"`
	ChooseB []string `json:"choose_product_b_if"`
}

func renderComparison(cmp ComparisonBlock) ComparisonContent {
	a, b := cmp.ProductA, cmp.ProductB
	return ComparisonContent{
		Title:           fmt.Sprintf("%s vs %s - Comparison", a.Name, b.Name),
		MetaDescription: fmt.Sprintf("Compare %s vs %s. See ingredients, benefits, prices, and find the best choice for your skin.", a.Name, b.Name),
		Subtitle:        fmt.Sprintf("Compare %s and %s to find the best fit for your skincare routine", a.Name, b.Name),
		Table:           cmp.Features,
		Comparison:      cmp,
		Recommendation: Recommendation{
			Summary: cmp.Summary,
			ChooseA: choiceReasons(a, b),
			ChooseB: choiceReasons(b, a),
		},
	}
}

func choiceReasons(self, other ProductSummary) []string {
	reasons := []string{}
	for _, benefit := range self.Benefits {
		if !containsFold(other.Benefits, strings.ToLower(benefit)) {
			reasons = append(reasons, "You want "+strings.ToLower(benefit))
		}
	}
	for _, st := range self.SkinTypes {
		found := false
		for _, o := range other.SkinTypes {
			if o == st {
				found = true
				break
			}
		}
		if !found {
			reasons = append(reasons, fmt.Sprintf("You have %s skin", strings.ToLower(string(st))))
		}
	}
	return reasons
}

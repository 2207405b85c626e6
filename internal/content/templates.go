package content

import "fmt"

// Page names produced by a full run.
const (
	PageFAQ        = "faq"
	PageProduct    = "product_page"
	PageComparison = "comparison_page"
)

// Block names a template may require.
const (
	BlockBenefits    = "benefits"
	BlockUsage       = "usage"
	BlockSafety      = "safety"
	BlockPricing     = "pricing"
	BlockIngredients = "ingredients"
	BlockComparison  = "comparison"
)

// Template declares one page layout. Priority uses the task queue's scale
// (1 low, 5 normal, 10 high, 20 critical).
type Template struct {
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       int      `json:"priority"`
	RequiredBlocks []string `json:"required_blocks"`
}

var templates = []Template{
	{
		Name:           PageFAQ,
		Title:          "FAQ Page Template",
		Description:    "Question and answer pairs grouped by category",
		Priority:       10,
		RequiredBlocks: []string{BlockBenefits, BlockUsage, BlockSafety, BlockIngredients, BlockPricing},
	},
	{
		Name:           PageProduct,
		Title:          "Product Description Page Template",
		Description:    "Hero, benefits, ingredients, usage, safety and pricing sections",
		Priority:       10,
		RequiredBlocks: []string{BlockBenefits, BlockUsage, BlockSafety, BlockIngredients, BlockPricing},
	},
	{
		Name:           PageComparison,
		Title:          "Product Comparison Page Template",
		Description:    "Side by side comparison against a second product",
		Priority:       5,
		RequiredBlocks: []string{BlockComparison},
	},
}

// Templates returns a copy of every known template.
func Templates() []Template {
	out := make([]Template, len(templates))
	for i, t := range templates {
		t.RequiredBlocks = append([]string(nil), t.RequiredBlocks...)
		out[i] = t
	}
	return out
}

// TemplateByName looks up a template.
func TemplateByName(name string) (Template, error) {
	for _, t := range Templates() {
		if t.Name == name {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("unknown template %q", name)
}

// Names returns the names of every template, in declaration order.
func Names() []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = t.Name
	}
	return out
}

// HasBlocks reports whether b carries every block t requires.
func (t Template) HasBlocks(b Blocks) bool {
	for _, name := range t.RequiredBlocks {
		if name == BlockComparison && b.Comparison == nil {
			return false
		}
	}
	return true
}

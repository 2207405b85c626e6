package content

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

// Blocks is the full set of content sections generated for one product.
type Blocks struct {
	Benefits    BenefitsBlock    `json:"benefits"`
	Usage       UsageBlock       `json:"usage"`
	Safety      SafetyBlock      `json:"safety"`
	Pricing     PricingBlock     `json:"pricing"`
	Ingredients IngredientsBlock `json:"ingredients"`
	Comparison  *ComparisonBlock `json:"comparison,omitempty"`
}

// GenerateBlocks runs every block generator against p. The comparison block is
// only produced when other is non-nil.
func GenerateBlocks(p Product, other *Product) Blocks {
	b := Blocks{
		Benefits:    Benefits(p),
		Usage:       Usage(p),
		Safety:      Safety(p),
		Pricing:     Pricing(p),
		Ingredients: Ingredients(p),
	}
	if other != nil {
		cmp := Compare(p, *other)
		b.Comparison = &cmp
	}
	return b
}

// BenefitDetail pairs a benefit with its long description.
type BenefitDetail struct {
	Benefit     string `json:"benefit"`
	Description string `json:"description"`
}

// BenefitsBlock renders the product benefits in several formats.
type BenefitsBlock struct {
	List      []string        `json:"benefits_list"`
	Primary   string          `json:"primary_benefit"`
	Secondary []string        `json:"secondary_benefits"`
	Summary   string          `json:"benefits_summary"`
	Headline  string          `json:"benefits_headline"`
	Detailed  []BenefitDetail `json:"benefits_detailed"`
}

var benefitDescriptions = map[string]string{
	"brightening":      "Enhances skin radiance and gives you a natural glow",
	"fades dark spots": "Helps reduce the appearance of dark spots and uneven skin tone",
	"hydrating":        "Provides deep moisture to keep skin supple",
	"anti-aging":       "Helps reduce fine lines and wrinkles",
	"smoothing":        "Creates a smoother, more even skin texture",
}

// Benefits builds the benefits block.
func Benefits(p Product) BenefitsBlock {
	b := BenefitsBlock{
		List:      p.Benefits,
		Secondary: []string{},
		Headline:  "Discover the Benefits",
		Detailed:  make([]BenefitDetail, 0, len(p.Benefits)),
	}
	if len(p.Benefits) > 0 {
		b.Primary = p.Benefits[0]
		b.Secondary = p.Benefits[1:]
		b.Headline = fmt.Sprintf("Achieve %s and More", p.Benefits[0])
	}

	switch len(p.Benefits) {
	case 0:
	case 1:
		b.Summary = fmt.Sprintf("%s helps with %s.", p.Name, strings.ToLower(p.Benefits[0]))
	default:
		head := make([]string, 0, len(p.Benefits)-1)
		for _, benefit := range p.Benefits[:len(p.Benefits)-1] {
			head = append(head, strings.ToLower(benefit))
		}
		b.Summary = fmt.Sprintf("%s provides %s and %s.", p.Name, strings.Join(head, ", "),
			strings.ToLower(p.Benefits[len(p.Benefits)-1]))
	}

	for _, benefit := range p.Benefits {
		desc, ok := benefitDescriptions[strings.ToLower(benefit)]
		if !ok {
			desc = "Helps improve overall skin health through " + strings.ToLower(benefit)
		}
		b.Detailed = append(b.Detailed, BenefitDetail{Benefit: benefit, Description: desc})
	}
	return b
}

// UsageStep is one numbered instruction.
type UsageStep struct {
	Step        int    `json:"step"`
	Instruction string `json:"instruction"`
	Type        string `json:"type"`
}

// UsageBlock renders usage instructions as steps and a quick guide.
type UsageBlock struct {
	Text              string      `json:"usage_text"`
	Steps             []UsageStep `json:"usage_steps"`
	QuickGuide        string      `json:"quick_guide"`
	Timing            string      `json:"timing"`
	ApplicationMethod string      `json:"application_method"`
	Dosage            string      `json:"dosage"`
}

var dosagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+\s*[-–]\s*\d+\s+drops?`),
	regexp.MustCompile(`\d+\s+drops?`),
	regexp.MustCompile(`pea[- ]sized\s+amount`),
	regexp.MustCompile(`small\s+amount`),
}

var followUpPattern = regexp.MustCompile(`\bbefore\s+(.+)$`)

// Usage builds the usage block, extracting dosage, timing and sequencing from
// the free-text instructions.
func Usage(p Product) UsageBlock {
	lower := strings.ToLower(p.Usage)
	u := UsageBlock{
		Text:              p.Usage,
		Timing:            extractTiming(lower),
		ApplicationMethod: extractMethod(lower),
		Dosage:            extractDosage(lower),
		Steps:             []UsageStep{},
	}

	step := 1
	if u.Dosage != "" {
		u.Steps = append(u.Steps, UsageStep{Step: step, Instruction: "Take " + u.Dosage, Type: "dosage"})
		step++
	}
	if u.Timing != "" {
		u.Steps = append(u.Steps, UsageStep{Step: step, Instruction: "Apply " + u.Timing, Type: "timing"})
		step++
	}
	if m := followUpPattern.FindStringSubmatch(lower); m != nil {
		u.Steps = append(u.Steps, UsageStep{Step: step, Instruction: "Follow with " + strings.TrimSpace(m[1]), Type: "sequence"})
	}

	dosage := u.Dosage
	if dosage == "" {
		dosage = "appropriate amount"
	}
	timing := u.Timing
	if timing == "" {
		timing = "as directed"
	}
	u.QuickGuide = fmt.Sprintf("Apply %s of %s %s.", dosage, p.Name, timing)
	return u
}

func extractTiming(lower string) string {
	for _, kw := range []string{"morning", "evening", "night", "twice daily", "daily"} {
		if strings.Contains(lower, kw) {
			switch kw {
			case "morning", "evening", "night":
				return "in the " + kw
			default:
				return kw
			}
		}
	}
	return ""
}

func extractMethod(lower string) string {
	for _, m := range []string{"apply", "massage", "pat", "spread", "dab"} {
		if strings.Contains(lower, m) {
			return strings.ToUpper(m[:1]) + m[1:]
		}
	}
	return "Apply"
}

func extractDosage(lower string) string {
	for _, re := range dosagePatterns {
		if m := re.FindString(lower); m != "" {
			return m
		}
	}
	return ""
}

// Warning is one parsed side-effect warning.
type Warning struct {
	Warning     string `json:"warning"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// SafetyBlock renders side effects, precautions and suitability.
type SafetyBlock struct {
	SideEffectsText string    `json:"side_effects_text"`
	Warnings        []Warning `json:"warnings"`
	SuitableFor     []string  `json:"suitable_for"`
	Precautions     []string  `json:"precautions"`
	PatchTest       string    `json:"patch_test"`
	Summary         string    `json:"safety_summary"`
	Severity        string    `json:"severity"`
}

var warningKeywords = []struct {
	keyword, name, severity string
}{
	{"tingling", "Tingling Sensation", "mild"},
	{"redness", "Skin Redness", "mild"},
	{"irritation", "Skin Irritation", "moderate"},
	{"burning", "Burning Sensation", "moderate"},
	{"sensitivity", "Increased Sensitivity", "mild"},
	{"dryness", "Skin Dryness", "mild"},
	{"peeling", "Skin Peeling", "moderate"},
}

// Safety builds the safety block.
func Safety(p Product) SafetyBlock {
	lower := strings.ToLower(p.SideEffects)
	s := SafetyBlock{
		SideEffectsText: p.SideEffects,
		Warnings:        []Warning{},
		SuitableFor:     make([]string, 0, len(p.SkinTypes)),
		Severity:        "none",
	}
	if s.SideEffectsText == "" {
		s.SideEffectsText = "No known side effects"
	}
	for _, st := range p.SkinTypes {
		s.SuitableFor = append(s.SuitableFor, string(st))
	}

	for _, w := range warningKeywords {
		if strings.Contains(lower, w.keyword) {
			s.Warnings = append(s.Warnings, Warning{
				Warning:     w.name,
				Severity:    w.severity,
				Description: fmt.Sprintf("May cause %s in some users", w.keyword),
			})
			if s.Severity != "moderate" {
				s.Severity = w.severity
			}
		}
	}
	if strings.Contains(lower, "sensitive") {
		s.Warnings = append(s.Warnings, Warning{
			Warning:     "Sensitive Skin Advisory",
			Severity:    "mild",
			Description: "Users with sensitive skin should proceed with caution",
		})
		if s.Severity == "none" {
			s.Severity = "mild"
		}
	}

	s.Precautions = []string{
		"Perform a patch test before first use",
		"Avoid contact with eyes",
		"Keep out of reach of children",
	}
	for _, ing := range p.KeyIngredients {
		switch strings.ToLower(ing) {
		case "vitamin c":
			s.Precautions = append(s.Precautions,
				"Store in a cool, dark place to maintain potency",
				"Use sunscreen during the day as Vitamin C can increase sun sensitivity")
		case "retinol":
			s.Precautions = append(s.Precautions,
				"Avoid use during pregnancy",
				"Do not combine with other retinoids")
		}
	}

	if p.SideEffects != "" {
		s.PatchTest = "Recommended: apply a small amount to your inner arm and wait 24 hours before full use"
		s.Summary = fmt.Sprintf("%s is generally well tolerated. Note: %s.", p.Name, strings.TrimSuffix(p.SideEffects, "."))
	} else {
		s.PatchTest = "Optional: a patch test is always a good habit with new products"
		s.Summary = fmt.Sprintf("%s has no known side effects.", p.Name)
	}
	return s
}

// PriceCTA holds call-to-action strings.
type PriceCTA struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Urgency   string `json:"urgency"`
}

// PricingBlock renders price display, tier and value copy.
type PricingBlock struct {
	Price            float64  `json:"price"`
	Currency         string   `json:"currency"`
	Symbol           string   `json:"currency_symbol"`
	Formatted        string   `json:"formatted_price"`
	Tier             string   `json:"price_tier"`
	TierDescription  string   `json:"tier_description"`
	ValueProposition string   `json:"value_proposition"`
	PerUseEstimate   string   `json:"per_use_estimate"`
	CTA              PriceCTA `json:"cta_text"`
}

var currencySymbols = map[string]string{"INR": "₹", "USD": "$", "EUR": "€", "GBP": "£"}

// conversion to INR, used only for tiering.
var inrRates = map[string]float64{"INR": 1, "USD": 83, "EUR": 90, "GBP": 105}

var tierDescriptions = map[string]string{
	"budget":    "An excellent entry point for skincare enthusiasts",
	"mid-range": "Great value for quality skincare",
	"premium":   "Investment-worthy skincare with proven ingredients",
	"luxury":    "High-end formulation for discerning skincare lovers",
}

// FormatPrice renders a price with its currency symbol and thousands separators.
func FormatPrice(price float64, currency string) string {
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency
	}
	if price == math.Trunc(price) {
		return symbol + humanize.FormatFloat("#,###.", price)
	}
	return symbol + humanize.FormatFloat("#,###.##", price)
}

// PriceTier buckets a price after normalizing it to INR.
func PriceTier(price float64, currency string) string {
	rate, ok := inrRates[currency]
	if !ok {
		rate = 1
	}
	switch inr := price * rate; {
	case inr < 300:
		return "budget"
	case inr < 700:
		return "mid-range"
	case inr < 1500:
		return "premium"
	default:
		return "luxury"
	}
}

// Pricing builds the pricing block.
func Pricing(p Product) PricingBlock {
	formatted := FormatPrice(p.Price, p.Currency)
	tier := PriceTier(p.Price, p.Currency)
	b := PricingBlock{
		Price:           p.Price,
		Currency:        p.Currency,
		Symbol:          currencySymbols[p.Currency],
		Formatted:       formatted,
		Tier:            tier,
		TierDescription: tierDescriptions[tier],
		CTA: PriceCTA{
			Primary:   "Buy Now - " + formatted,
			Secondary: "Add to Cart",
			Urgency:   "Get yours for just " + formatted,
		},
	}
	if b.Symbol == "" {
		b.Symbol = p.Currency
	}

	switch {
	case p.Price < 500:
		b.ValueProposition = fmt.Sprintf("Affordable skincare with %d key benefits", len(p.Benefits))
	case p.Price < 1000:
		b.ValueProposition = fmt.Sprintf("Premium quality at a reasonable price with %d active ingredients", len(p.KeyIngredients))
	case p.Price < 2000:
		b.ValueProposition = fmt.Sprintf("Professional-grade formula with %d powerful ingredients", len(p.KeyIngredients))
	default:
		b.ValueProposition = fmt.Sprintf("Luxury skincare experience with %d transformative benefits", len(p.Benefits))
	}

	// assumes roughly 60 uses per bottle
	perUse := p.Price / 60
	if perUse < 10 {
		b.PerUseEstimate = fmt.Sprintf("Less than %s per use", FormatPrice(math.Floor(perUse)+1, p.Currency))
	} else {
		b.PerUseEstimate = fmt.Sprintf("About %s per use", FormatPrice(math.Floor(perUse), p.Currency))
	}
	return b
}

// IngredientInfo describes a known ingredient.
type IngredientInfo struct {
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Category    string   `json:"category"`
	Benefits    []string `json:"benefits"`
	Description string   `json:"description"`
}

// IngredientsBlock renders the ingredient list with details.
type IngredientsBlock struct {
	List          []string         `json:"ingredients_list"`
	Detailed      []IngredientInfo `json:"ingredients_detailed"`
	Hero          string           `json:"hero_ingredient"`
	Concentration string           `json:"concentration,omitempty"`
	Categories    []string         `json:"ingredient_categories"`
}

var ingredientInfo = map[string]IngredientInfo{
	"vitamin c": {
		FullName:    "Vitamin C (L-Ascorbic Acid)",
		Category:    "antioxidant",
		Benefits:    []string{"Brightening", "Antioxidant protection", "Collagen synthesis"},
		Description: "A powerful antioxidant that helps brighten skin and protect against environmental damage.",
	},
	"hyaluronic acid": {
		FullName:    "Hyaluronic Acid",
		Category:    "humectant",
		Benefits:    []string{"Hydration", "Plumping", "Moisture retention"},
		Description: "A moisture-binding ingredient that can hold up to 1000x its weight in water.",
	},
	"niacinamide": {
		FullName:    "Niacinamide (Vitamin B3)",
		Category:    "vitamin",
		Benefits:    []string{"Pore minimizing", "Oil control", "Barrier repair"},
		Description: "A versatile vitamin that helps improve skin texture and tone.",
	},
	"retinol": {
		FullName:    "Retinol (Vitamin A)",
		Category:    "retinoid",
		Benefits:    []string{"Anti-aging", "Cell turnover", "Wrinkle reduction"},
		Description: "A gold-standard anti-aging ingredient that promotes cell renewal.",
	},
	"salicylic acid": {
		FullName:    "Salicylic Acid (BHA)",
		Category:    "exfoliant",
		Benefits:    []string{"Pore cleansing", "Acne treatment", "Exfoliation"},
		Description: "An oil-soluble acid that penetrates pores to clear congestion.",
	},
}

// Ingredients builds the ingredients block. The hero ingredient is the one
// named in the concentration, falling back to the first listed.
func Ingredients(p Product) IngredientsBlock {
	b := IngredientsBlock{
		List:          p.KeyIngredients,
		Detailed:      make([]IngredientInfo, 0, len(p.KeyIngredients)),
		Concentration: p.Concentration,
		Categories:    []string{},
	}
	seen := map[string]bool{}
	concLower := strings.ToLower(p.Concentration)
	for _, ing := range p.KeyIngredients {
		key := strings.ToLower(ing)
		info, ok := ingredientInfo[key]
		if !ok {
			info = IngredientInfo{
				FullName:    ing,
				Category:    "active",
				Benefits:    []string{},
				Description: ing + " supports the overall formula.",
			}
		}
		info.Name = ing
		b.Detailed = append(b.Detailed, info)
		if !seen[info.Category] {
			seen[info.Category] = true
			b.Categories = append(b.Categories, info.Category)
		}
		if b.Hero == "" && concLower != "" && strings.Contains(concLower, key) {
			b.Hero = ing
		}
	}
	if b.Hero == "" && len(p.KeyIngredients) > 0 {
		b.Hero = p.KeyIngredients[0]
	}
	return b
}

// ProductSummary is the short form of a product used in comparisons.
type ProductSummary struct {
	Name           string     `json:"name"`
	Concentration  string     `json:"concentration,omitempty"`
	KeyIngredients []string   `json:"key_ingredients"`
	Benefits       []string   `json:"benefits"`
	SkinTypes      []SkinType `json:"skin_types"`
	Price          string     `json:"price"`
}

// FeatureRow is one line of a side-by-side comparison.
type FeatureRow struct {
	Feature  string `json:"feature"`
	ProductA string `json:"product_a"`
	ProductB string `json:"product_b"`
	Winner   string `json:"winner"`
}

// ComparisonBlock compares the primary product against a second one.
type ComparisonBlock struct {
	ProductA          ProductSummary `json:"product_a"`
	ProductB          ProductSummary `json:"product_b"`
	Features          []FeatureRow   `json:"feature_comparison"`
	SharedIngredients []string       `json:"shared_ingredients"`
	SharedBenefits    []string       `json:"shared_benefits"`
	PriceDifference   string         `json:"price_difference"`
	Summary           string         `json:"comparison_summary"`
}

// Compare builds the comparison block for a against b.
func Compare(a, b Product) ComparisonBlock {
	c := ComparisonBlock{
		ProductA:          summarize(a),
		ProductB:          summarize(b),
		SharedIngredients: intersect(a.KeyIngredients, b.KeyIngredients),
		SharedBenefits:    intersect(a.Benefits, b.Benefits),
	}

	c.Features = []FeatureRow{
		{
			Feature:  "Concentration",
			ProductA: orDefault(a.Concentration, "Not specified"),
			ProductB: orDefault(b.Concentration, "Not specified"),
			Winner:   "tie",
		},
		countRow("Key Ingredients", "ingredients", a.Name, b.Name, len(a.KeyIngredients), len(b.KeyIngredients)),
		countRow("Benefits", "benefits", a.Name, b.Name, len(a.Benefits), len(b.Benefits)),
		countRow("Skin Type Versatility", "skin types", a.Name, b.Name, len(a.SkinTypes), len(b.SkinTypes)),
		{
			Feature:  "Price",
			ProductA: FormatPrice(a.Price, a.Currency),
			ProductB: FormatPrice(b.Price, b.Currency),
			Winner:   cheaper(a, b),
		},
	}

	diff := math.Abs(a.Price - b.Price)
	switch {
	case diff == 0:
		c.PriceDifference = "Both products cost the same"
	case a.Price < b.Price:
		c.PriceDifference = fmt.Sprintf("%s is %s cheaper", a.Name, FormatPrice(diff, a.Currency))
	default:
		c.PriceDifference = fmt.Sprintf("%s is %s cheaper", b.Name, FormatPrice(diff, a.Currency))
	}

	c.Summary = fmt.Sprintf("%s focuses on %s while %s focuses on %s.",
		a.Name, orDefault(strings.ToLower(first(a.Benefits)), "general care"),
		b.Name, orDefault(strings.ToLower(first(b.Benefits)), "general care"))
	return c
}

func summarize(p Product) ProductSummary {
	return ProductSummary{
		Name:           p.Name,
		Concentration:  p.Concentration,
		KeyIngredients: p.KeyIngredients,
		Benefits:       p.Benefits,
		SkinTypes:      p.SkinTypes,
		Price:          FormatPrice(p.Price, p.Currency),
	}
}

func countRow(feature, unit, nameA, nameB string, a, b int) FeatureRow {
	row := FeatureRow{
		Feature:  feature,
		ProductA: fmt.Sprintf("%d %s", a, unit),
		ProductB: fmt.Sprintf("%d %s", b, unit),
		Winner:   "tie",
	}
	if a > b {
		row.Winner = nameA
	} else if b > a {
		row.Winner = nameB
	}
	return row
}

func cheaper(a, b Product) string {
	pa := a.Price * rateOf(a.Currency)
	pb := b.Price * rateOf(b.Currency)
	switch {
	case pa < pb:
		return a.Name
	case pb < pa:
		return b.Name
	default:
		return "tie"
	}
}

func rateOf(currency string) float64 {
	if r, ok := inrRates[currency]; ok {
		return r
	}
	return 1
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[strings.ToLower(s)] = true
	}
	out := []string{}
	for _, s := range a {
		if set[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

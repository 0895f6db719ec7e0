package enrich

import (
	"strings"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
)

// categoryRule matches keywords against the merchant and description fields.
// Rules are evaluated in order; the first match wins.
type categoryRule struct {
	merchantKeywords    []string
	descriptionKeywords []string
	category            string
}

var categoryRules = []categoryRule{
	{[]string{"grocery", "supermarket"}, []string{"food"}, models.CategoryFoodAndGroceries},
	{[]string{"gas", "fuel"}, []string{"gasoline"}, models.CategoryTransportation},
	{[]string{"amazon", "walmart"}, []string{"shopping"}, models.CategoryShopping},
	{[]string{"restaurant", "cafe"}, []string{"dining"}, models.CategoryDining},
	{[]string{"hotel", "airbnb"}, []string{"travel"}, models.CategoryTravel},
	{[]string{"netflix", "spotify"}, []string{"entertainment"}, models.CategoryEntertainment},
}

// defaultTags is a placeholder for richer content-derived tagging
var defaultTags = []string{"processed", "risk_assessed"}

// Enricher fills missing category and tags on a transaction using
// merchant/description heuristics. Enrichment is idempotent: fields already
// set are left untouched.
type Enricher struct{}

// NewEnricher creates a new Enricher
func NewEnricher() *Enricher {
	return &Enricher{}
}

// Enrich populates category and tags if previously absent
func (e *Enricher) Enrich(tx *models.Transaction) {
	if tx.Category == "" {
		tx.Category = e.categorize(tx)
	}
	if tx.Tags == nil {
		tags := make([]string, len(defaultTags))
		copy(tags, defaultTags)
		tx.Tags = tags
	}
}

// categorize assigns a spending category with a case-insensitive keyword
// match, in fixed priority order
func (e *Enricher) categorize(tx *models.Transaction) string {
	merchant := strings.ToLower(tx.Merchant)
	description := strings.ToLower(tx.Description)

	for _, rule := range categoryRules {
		if containsAny(merchant, rule.merchantKeywords) || containsAny(description, rule.descriptionKeywords) {
			return rule.category
		}
	}
	return models.CategoryOther
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Apify      ApifyRate      `yaml:"apify" mapstructure:"apify"`
	Perplexity PerplexityRate `yaml:"perplexity" mapstructure:"perplexity"`
}

// ApifyRate holds Google Maps actor pricing (per scraped place).
type ApifyRate struct {
	PerPlace float64 `yaml:"per_place" mapstructure:"per_place"`
}

// PerplexityRate holds Perplexity pricing (per chat completion).
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes projected API spend for pipeline stages.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Scrape computes the cost of scraping the given number of places.
func (c *Calculator) Scrape(places int) float64 {
	if places <= 0 {
		return 0
	}
	return float64(places) * c.rates.Apify.PerPlace
}

// Enrich computes the cost of enriching the given number of leads, one
// chat completion per lead.
func (c *Calculator) Enrich(leads int) float64 {
	if leads <= 0 {
		return 0
	}
	return float64(leads) * c.rates.Perplexity.PerQuery
}

// Run computes the projected cost of a full pipeline run over the given
// number of leads.
func (c *Calculator) Run(leads int) float64 {
	return c.Scrape(leads) + c.Enrich(leads)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Apify:      ApifyRate{PerPlace: 0.004},
		Perplexity: PerplexityRate{PerQuery: 0.005},
	}
}

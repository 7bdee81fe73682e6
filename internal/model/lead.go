package model

// Lead represents one scraped business listing. The first eight fields are
// always present after a scrape; BusinessInfo is added by enrichment and is
// never removed once set.
type Lead struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Location     string `json:"location"`
	City         string `json:"city"`
	State        string `json:"state"`
	Phone        string `json:"phone"`
	Website      string `json:"website"`
	Email        string `json:"email"`
	BusinessInfo string `json:"business_info,omitempty"`
}

// Enriched reports whether the lead already carries a business summary.
func (l Lead) Enriched() bool {
	return l.BusinessInfo != ""
}

// AnyEnriched reports whether at least one lead in the list carries a
// business summary. Used to decide whether a resumed checkpoint already
// went through enrichment.
func AnyEnriched(leads []Lead) bool {
	for _, l := range leads {
		if l.Enriched() {
			return true
		}
	}
	return false
}

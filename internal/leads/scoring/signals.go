package scoring

import (
	"fmt"

	"growthdesk_backend/internal/leads/domain"
)

// IntentSignals derives human-readable observations from the raw
// counters. Purely explanatory: signals never feed back into the scores.
// The order is fixed so identical counters always produce identical
// output.
func IntentSignals(lead *domain.Lead) []string {
	signals := make([]string, 0, 8)

	switch {
	case lead.WebsiteVisits >= 5:
		signals = append(signals, fmt.Sprintf("Frequent visitor: %d website visits", lead.WebsiteVisits))
	case lead.WebsiteVisits >= 2:
		signals = append(signals, fmt.Sprintf("Returned to the website %d times", lead.WebsiteVisits))
	}

	switch {
	case lead.PageViews >= 10:
		signals = append(signals, fmt.Sprintf("Explored the site in depth: %d pages viewed", lead.PageViews))
	case lead.PageViews >= 5:
		signals = append(signals, fmt.Sprintf("Browsed %d pages", lead.PageViews))
	}

	switch {
	case lead.TimeOnSiteSeconds >= 300:
		signals = append(signals, "Spent over five minutes reading the site")
	case lead.TimeOnSiteSeconds >= 120:
		signals = append(signals, "Spent over two minutes on the site")
	}

	if lead.FormAbandoned {
		signals = append(signals, "Started but abandoned the booking form: high intent with friction")
	}

	if lead.LastPageViewed != nil && *lead.LastPageViewed != "" {
		signals = append(signals, fmt.Sprintf("Last page viewed: %s", *lead.LastPageViewed))
	}

	switch {
	case lead.LinksClicked >= 2:
		signals = append(signals, fmt.Sprintf("Clicked %d links in outreach emails", lead.LinksClicked))
	case lead.LinksClicked == 1:
		signals = append(signals, "Clicked a link in an outreach email")
	case lead.EmailsOpened >= 3:
		signals = append(signals, fmt.Sprintf("Opened %d outreach emails", lead.EmailsOpened))
	}

	switch lead.Source {
	case domain.SourceReferral:
		signals = append(signals, "Referred by an existing patient")
	case domain.SourceWalkIn:
		signals = append(signals, "Walked into the practice in person")
	}

	return signals
}

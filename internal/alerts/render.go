package alerts

import (
	"fmt"
	"html/template"
	"strings"

	"marketplace-search/internal/models"
)

const maxSummaryLength = 160

var emailTemplate = template.Must(template.New("alert").Parse(`<html>
<body>
	<h2>New match for “{{.SearchName}}”</h2>
	<p><strong>{{.Title}}</strong>{{if .Featured}} ⭐{{end}}</p>
	<p>{{.Price}} — condition: {{.Condition}}</p>
	<p>{{.Summary}}</p>
	<p><a href="{{.ListingURL}}">View listing</a></p>
	<hr>
	<p style="font-size:small">You receive this because of your saved search.
	<a href="{{.UnsubscribeURL}}">Stop notifications for this search</a></p>
</body>
</html>
`))

type emailData struct {
	SearchName     string
	Title          string
	Featured       bool
	Price          string
	Condition      string
	Summary        string
	ListingURL     string
	UnsubscribeURL string
}

// RenderEmail renders the notification subject and HTML body for one queued
// alert: a listing summary plus the unsubscribe reference.
func RenderEmail(content *models.NotificationContent, baseURL string) (subject, body string, err error) {
	listing := content.Listing

	summary := listing.Description
	if runes := []rune(summary); len(runes) > maxSummaryLength {
		summary = strings.TrimSpace(string(runes[:maxSummaryLength])) + "…"
	}

	data := emailData{
		SearchName:     content.SearchName,
		Title:          listing.Title,
		Featured:       listing.IsFeatured,
		Price:          fmt.Sprintf("%.2f %s", listing.Price, listing.Currency),
		Condition:      listing.Condition,
		Summary:        summary,
		ListingURL:     fmt.Sprintf("%s/listings/%d", baseURL, listing.ID),
		UnsubscribeURL: fmt.Sprintf("%s/saved-searches/%d/unsubscribe", baseURL, content.SearchID),
	}

	var b strings.Builder
	if err := emailTemplate.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render alert email: %w", err)
	}

	subject = fmt.Sprintf("New listing for your search %q: %s", content.SearchName, listing.Title)
	return subject, b.String(), nil
}

package alerts

import (
	"strings"
	"testing"

	"marketplace-search/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmail(t *testing.T) {
	content := &models.NotificationContent{
		SearchID:   7,
		SearchName: "bikes nearby",
		OwnerEmail: "owner@example.com",
		Listing: models.Listing{
			ID:          42,
			Title:       "City bike",
			Description: "Lightly used city bike with new tires",
			Price:       120.5,
			Currency:    "EUR",
			Condition:   models.ConditionGood,
			IsFeatured:  true,
		},
	}

	subject, body, err := RenderEmail(content, "https://market.example.com")
	require.NoError(t, err)

	assert.Contains(t, subject, "bikes nearby")
	assert.Contains(t, subject, "City bike")

	assert.Contains(t, body, "City bike")
	assert.Contains(t, body, "120.50 EUR")
	assert.Contains(t, body, "good")
	assert.Contains(t, body, "Lightly used city bike")
	assert.Contains(t, body, `href="https://market.example.com/listings/42"`)
	assert.Contains(t, body, `href="https://market.example.com/saved-searches/7/unsubscribe"`)
}

func TestRenderEmailTruncatesLongDescription(t *testing.T) {
	content := &models.NotificationContent{
		SearchName: "bikes",
		Listing: models.Listing{
			ID:          1,
			Title:       "Bike",
			Description: strings.Repeat("very long description ", 20),
			Price:       10,
			Currency:    "EUR",
			Condition:   models.ConditionFair,
		},
	}

	_, body, err := RenderEmail(content, "https://market.example.com")
	require.NoError(t, err)

	assert.NotContains(t, body, content.Listing.Description)
	assert.Contains(t, body, "…")
}

func TestRenderEmailEscapesHTML(t *testing.T) {
	content := &models.NotificationContent{
		SearchName: "bikes",
		Listing: models.Listing{
			ID:          1,
			Title:       `<script>alert("x")</script>`,
			Description: "ok",
			Price:       10,
			Currency:    "EUR",
			Condition:   models.ConditionNew,
		},
	}

	_, body, err := RenderEmail(content, "https://market.example.com")
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
}

package extract

import (
	"encoding/json"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ldEvent is the subset of the embedded JSON-LD payload the extractor
// cares about. The payload arrives HTML-entity-escaped inside a script
// tag and is normalized to plain structured values before use.
type ldEvent struct {
	Type      string          `json:"@type"`
	Name      string          `json:"name"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Location  json.RawMessage `json:"location"`
}

// LocationName tolerates both a bare string and a Place object.
func (e ldEvent) LocationName() string {
	if len(e.Location) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Location, &s); err == nil {
		return s
	}
	var place struct {
		Name    string `json:"name"`
		Address struct {
			AddressLocality string `json:"addressLocality"`
			AddressCountry  string `json:"addressCountry"`
		} `json:"address"`
	}
	if err := json.Unmarshal(e.Location, &place); err != nil {
		return ""
	}
	if place.Name != "" {
		return place.Name
	}
	parts := make([]string, 0, 2)
	if place.Address.AddressLocality != "" {
		parts = append(parts, place.Address.AddressLocality)
	}
	if place.Address.AddressCountry != "" {
		parts = append(parts, place.Address.AddressCountry)
	}
	return strings.Join(parts, ", ")
}

// decodeEventLD finds the first JSON-LD script describing a sports
// event, unescapes HTML entities and decodes it. Both a single object
// and an array payload are accepted.
func decodeEventLD(doc *goquery.Document) (ldEvent, bool) {
	var (
		found bool
		out   ldEvent
	)
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := html.UnescapeString(strings.TrimSpace(sel.Text()))
		if raw == "" {
			return true
		}
		var one ldEvent
		if err := json.Unmarshal([]byte(raw), &one); err == nil && isEventType(one.Type) {
			out, found = one, true
			return false
		}
		var many []ldEvent
		if err := json.Unmarshal([]byte(raw), &many); err == nil {
			for _, cand := range many {
				if isEventType(cand.Type) {
					out, found = cand, true
					return false
				}
			}
		}
		return true
	})
	return out, found
}

func isEventType(t string) bool {
	switch t {
	case "Event", "SportsEvent":
		return true
	default:
		return false
	}
}

var ldDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04:05",
}

func parseLDDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range ldDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

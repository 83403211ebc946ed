package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

func extractEventList(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	if doc.Find(".events-holder").Length() == 0 {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "events listing"}
	}

	var events []hltv.EventRecord
	doc.Find(".big-event, .small-event").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		id, ok := pathID(href, "events")
		if !ok {
			return
		}

		name := strings.TrimSpace(sel.Find(".big-event-name, .small-event-name").First().Text())
		if name == "" {
			// Fallback: first line of the whole tile.
			name = strings.TrimSpace(strings.SplitN(sel.Text(), "\n", 2)[0])
		}

		rec := hltv.EventRecord{
			ID:        id,
			Name:      name,
			StartDate: dataUnixTime(sel.Find("span[data-unix]").First()),
		}
		if dates := sel.Find("span[data-unix]"); dates.Length() > 1 {
			rec.EndDate = dataUnixTime(dates.Last())
		}

		sel.Find("span.text-ellipsis").EachWithBreak(func(_ int, loc *goquery.Selection) bool {
			text := strings.TrimSpace(loc.Text())
			if text == "" || looksLikeDate(text) {
				return true
			}
			rec.Location = &text
			return false
		})

		eventType := "Online"
		if sel.HasClass("big-event") {
			eventType = "LAN"
		}
		rec.EventType = &eventType

		events = append(events, rec)
	})

	return hltv.Extraction{Kind: page.Kind, Events: events}, nil
}

func extractEventOverview(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	id, ok := pathID(page.URL, "events")
	if !ok {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "event id"}
	}

	rec := hltv.EventRecord{
		ID:   id,
		Name: strings.TrimSpace(doc.Find(".event-hub-title").First().Text()),
	}

	if dates := doc.Find("td.eventdate span[data-unix]"); dates.Length() > 0 {
		rec.StartDate = dataUnixTime(dates.First())
		if dates.Length() > 1 {
			rec.EndDate = dataUnixTime(dates.Last())
		}
	}

	doc.Find("span.text-ellipsis").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if text == "" || looksLikeDate(text) || !strings.Contains(text, ",") {
			return true
		}
		rec.Location = &text
		return false
	})

	rec.PrizePool = extractPrizePool(doc)

	// The overview page embeds an entity-escaped JSON-LD payload; use
	// it to fill anything the visible markup did not yield.
	if ld, ok := decodeEventLD(doc); ok {
		if rec.Name == "" {
			rec.Name = ld.Name
		}
		if rec.StartDate == nil {
			rec.StartDate = parseLDDate(ld.StartDate)
		}
		if rec.EndDate == nil {
			rec.EndDate = parseLDDate(ld.EndDate)
		}
		if rec.Location == nil {
			rec.Location = textPtr(ld.LocationName())
		}
	}

	return hltv.Extraction{Kind: page.Kind, Event: &rec}, nil
}

// extractPrizePool prefers the dedicated prize pool cell and falls back
// to the largest dollar amount on the page.
func extractPrizePool(doc *goquery.Document) *string {
	if text := strings.TrimSpace(doc.Find("td.prizepool").First().Text()); text != "" {
		return &text
	}

	var best string
	var bestValue float64
	doc.Find("span, td, div").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		match := prizePattern.FindString(sel.Text())
		if match == "" {
			return
		}
		if v := parseFloatText(match); v != nil && *v > bestValue {
			bestValue = *v
			best = match
		}
	})
	return textPtr(best)
}

func extractEventResults(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	eventID, ok := pathID(page.URL, "events")
	if !ok {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "event id"}
	}

	var results []hltv.Placement
	doc.Find(".placements .placement").Each(func(_ int, sel *goquery.Selection) {
		anchor := sel.Find("a[href*='/team/']").First()
		href, _ := anchor.Attr("href")
		teamID, ok := pathID(href, "team")
		if !ok {
			return
		}
		p := hltv.Placement{
			TeamID:   teamID,
			TeamName: strings.TrimSpace(anchor.Text()),
		}
		text := sel.Text()
		if m := placementPattern.FindStringSubmatch(text); m != nil {
			p.Placement = parseIntText(m[1])
		}
		if prize := prizePattern.FindString(text); prize != "" {
			p.Prize = &prize
		}
		results = append(results, p)
	})

	return hltv.Extraction{Kind: page.Kind, EventID: eventID, Results: results}, nil
}

func extractEventStats(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	eventID, ok := queryEventID(page.URL)
	if !ok {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "event id"}
	}

	var stats []hltv.EventStatRecord
	doc.Find(".stats-table tbody tr").Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find("td.playerCol a").First()
		href, _ := anchor.Attr("href")
		playerID, ok := pathID(href, "players")
		if !ok {
			return
		}
		stats = append(stats, hltv.EventStatRecord{
			EventID:    eventID,
			PlayerID:   playerID,
			Nickname:   strings.TrimSpace(anchor.Text()),
			Rating:     parseFloatText(row.Find("td.ratingCol").First().Text()),
			MapsPlayed: parseIntText(row.Find("td.statsDetail").First().Text()),
		})
	})

	return hltv.Extraction{Kind: page.Kind, EventID: eventID, Stats: stats}, nil
}

func queryEventID(url string) (int64, bool) {
	idx := strings.Index(url, "event=")
	if idx < 0 {
		return 0, false
	}
	rest := url[idx+len("event="):]
	if amp := strings.IndexByte(rest, '&'); amp >= 0 {
		rest = rest[:amp]
	}
	if v := parseIntText(rest); v != nil && *v > 0 {
		return int64(*v), true
	}
	return 0, false
}

// Package extract maps loaded page content into typed records. All
// extraction is a pure function of the page body: missing fragments
// degrade to absent fields, but a record whose identity-bearing
// fragment is missing is never produced.
package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// HTMLExtractor implements hltv.Extractor over goquery documents.
type HTMLExtractor struct{}

// New creates an HTMLExtractor.
func New() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract dispatches on the page kind. Every kind shares the same
// fail/degrade rules.
func (e *HTMLExtractor) Extract(page hltv.Page) (hltv.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "parseable markup"}
	}
	switch page.Kind {
	case hltv.PageEventList:
		return extractEventList(doc, page)
	case hltv.PageEventOverview:
		return extractEventOverview(doc, page)
	case hltv.PageEventResults:
		return extractEventResults(doc, page)
	case hltv.PageEventStats:
		return extractEventStats(doc, page)
	case hltv.PageTeamRanking:
		return extractTeamRanking(doc, page)
	case hltv.PageTeamProfile:
		return extractTeamProfile(doc, page)
	case hltv.PagePlayerList:
		return extractPlayerList(doc, page)
	case hltv.PagePlayerProfile:
		return extractPlayerProfile(doc, page)
	default:
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "known page kind"}
	}
}

var (
	numberPattern    = regexp.MustCompile(`-?[\d.]+`)
	placementPattern = regexp.MustCompile(`(\d+)(?:st|nd|rd|th)`)
	prizePattern     = regexp.MustCompile(`\$[\d,]+`)
)

// pathID pulls the numeric id that follows /<marker>/ in a URL path,
// e.g. pathID("/team/4608/navi", "team") == 4608.
func pathID(href, marker string) (int64, bool) {
	idx := strings.Index(href, "/"+marker+"/")
	if idx < 0 {
		return 0, false
	}
	rest := href[idx+len(marker)+2:]
	end := strings.IndexByte(rest, '/')
	if end >= 0 {
		rest = rest[:end]
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseFloatText(text string) *float64 {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	match := numberPattern.FindString(text)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntText(text string) *int {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	match := numberPattern.FindString(text)
	if match == "" {
		return nil
	}
	v, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &v
}

func textPtr(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}

// dataUnixTime reads the source site's millisecond timestamp attribute.
func dataUnixTime(sel *goquery.Selection) *time.Time {
	raw, ok := sel.Attr("data-unix")
	if !ok {
		return nil
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

var monthNames = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// looksLikeDate filters out date ranges that share markup with
// location labels on listing pages.
func looksLikeDate(text string) bool {
	for _, month := range monthNames {
		if strings.Contains(text, month) {
			return true
		}
	}
	return false
}

package session

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signal is one declarative indicator that a loaded page is an anti-bot
// challenge rather than real content. A signal matches when its
// substring occurs in the lowercased body or its selector is present in
// the parsed document.
type Signal struct {
	Name      string
	Substring string
	Selector  string
}

// DefaultSignals returns the strong challenge signals observed on the
// source site's interstitial pages.
func DefaultSignals() []Signal {
	return []Signal{
		{Name: "challenge-title", Substring: "<title>just a moment...</title>"},
		{Name: "browser-check", Substring: "checking your browser before accessing"},
		{Name: "cf-verification", Substring: "cf-browser-verification"},
		{Name: "browser-wait", Substring: "wait while we check your browser"},
		{Name: "js-cookies-notice", Substring: "please enable javascript and cookies"},
		{Name: "challenge-platform", Substring: "/cdn-cgi/challenge-platform/"},
		{Name: "challenge-form", Selector: "#challenge-form"},
	}
}

// DefaultThreshold is the number of independent strong signals required
// before a page classifies as blocked. Requiring two trades a little
// missed-detection risk for far fewer false aborts on legitimate pages.
const DefaultThreshold = 2

// Classifier scores a loaded page against a signal list.
type Classifier struct {
	signals   []Signal
	threshold int
}

// NewClassifier builds a Classifier. A nonpositive threshold falls back
// to DefaultThreshold.
func NewClassifier(signals []Signal, threshold int) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Classifier{
		signals:   signals,
		threshold: threshold,
	}
}

// Classify reports whether the body is a challenge page and which
// signals matched. Fewer matches than the threshold classifies as
// clean, whatever the individual signals say.
func (c *Classifier) Classify(body []byte) (bool, []string) {
	if c == nil || len(body) == 0 {
		return false, nil
	}
	lower := strings.ToLower(string(body))

	var doc *goquery.Document
	matched := make([]string, 0, len(c.signals))
	for _, sig := range c.signals {
		switch {
		case sig.Substring != "":
			if strings.Contains(lower, sig.Substring) {
				matched = append(matched, sig.Name)
			}
		case sig.Selector != "":
			if doc == nil {
				parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
				if err != nil {
					continue
				}
				doc = parsed
			}
			if doc.Find(sig.Selector).Length() > 0 {
				matched = append(matched, sig.Name)
			}
		}
	}
	return len(matched) >= c.threshold, matched
}

package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

var (
	nicknamePattern = regexp.MustCompile(`'([^']+)'`)
	realNamePattern = regexp.MustCompile(`^([^']+?)\s+'`)
	agePattern      = regexp.MustCompile(`(\d+)\s+years?`)
)

func extractPlayerList(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	if doc.Find(".stats-table").Length() == 0 {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "player listing"}
	}

	var players []hltv.PlayerSummary
	doc.Find(".stats-table tbody tr").Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find("td.playerCol a").First()
		href, _ := anchor.Attr("href")
		id, ok := pathID(href, "players")
		if !ok {
			return
		}
		nickname := strings.TrimSpace(anchor.Text())
		if nickname == "" {
			return
		}
		players = append(players, hltv.PlayerSummary{ID: id, Nickname: nickname})
	})

	return hltv.Extraction{Kind: page.Kind, Players: players}, nil
}

func extractPlayerProfile(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	id, ok := pathID(page.URL, "players")
	if !ok {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "player id"}
	}

	player := hltv.PlayerRecord{ID: id}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if m := nicknamePattern.FindStringSubmatch(title); m != nil {
		player.Nickname = m[1]
	}
	if m := realNamePattern.FindStringSubmatch(title); m != nil {
		player.RealName = textPtr(m[1])
	}
	if player.Nickname == "" {
		player.Nickname = strings.TrimSpace(doc.Find(".summaryNickname").First().Text())
	}
	if player.RealName == nil {
		player.RealName = textPtr(doc.Find(".summaryRealname").First().Text())
	}

	if flag := doc.Find(".summaryRealname img.flag, img.flag").First(); flag.Length() > 0 {
		if country, ok := flag.Attr("title"); ok {
			player.Country = textPtr(country)
		}
	}

	if m := agePattern.FindStringSubmatch(doc.Find(".summaryPlayerAge").First().Text()); m != nil {
		player.Age = parseIntText(m[1])
	}

	if team := doc.Find(".SummaryTeamname a, a[href*='/team/']").First(); team.Length() > 0 {
		if href, ok := team.Attr("href"); ok {
			if teamID, ok := pathID(href, "team"); ok {
				player.CurrentTeamID = &teamID
			}
		}
	}

	player.Stats = extractStatBlock(doc)
	if player.Stats != nil && player.Stats.Rating == nil {
		player.Stats.Rating = parseFloatText(doc.Find(".summaryStatBreakdownDataValue").First().Text())
	}

	return hltv.Extraction{Kind: page.Kind, Player: &player}, nil
}

// extractStatBlock reads the career stat rows. A nil return means the
// page carried no stat block at all, which callers treat as "leave the
// stored block untouched".
func extractStatBlock(doc *goquery.Document) *hltv.PlayerStats {
	rows := doc.Find(".stats-row")
	if rows.Length() == 0 {
		return nil
	}

	stats := &hltv.PlayerStats{}
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("span")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.First().Text())
		value := strings.TrimSpace(cells.Last().Text())
		switch label {
		case "Total kills":
			stats.Kills = parseIntText(value)
		case "Deaths":
			stats.Deaths = parseIntText(value)
		case "Headshot %":
			stats.HeadshotPct = parseFloatText(strings.TrimSuffix(value, "%"))
		case "K/D Ratio":
			stats.KDRatio = parseFloatText(value)
		case "Damage / Round", "Damage / round":
			stats.ADR = parseFloatText(value)
		case "Kills / round":
			stats.KillsPerRnd = parseFloatText(value)
		case "Assists / round":
			stats.AssistsPerRd = parseFloatText(value)
		case "Maps played":
			stats.Maps = parseIntText(value)
		case "Rounds played":
			stats.Rounds = parseIntText(value)
		case "KAST":
			stats.KAST = parseFloatText(strings.TrimSuffix(value, "%"))
		case "Impact":
			stats.Impact = parseFloatText(value)
		case "Rating 2.0", "Rating 1.0":
			stats.Rating = parseFloatText(value)
		}
	})
	return stats
}

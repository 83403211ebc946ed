package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

func extractTeamRanking(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	if doc.Find(".ranked-team").Length() == 0 {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "ranking listing"}
	}

	var teams []hltv.TeamSummary
	doc.Find(".ranked-team").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Find("a[href*='/team/']").First().Attr("href")
		id, ok := pathID(href, "team")
		if !ok {
			return
		}
		name := strings.TrimSpace(sel.Find(".name").First().Text())
		teams = append(teams, hltv.TeamSummary{ID: id, Name: name})
	})

	return hltv.Extraction{Kind: page.Kind, Teams: teams}, nil
}

func extractTeamProfile(doc *goquery.Document, page hltv.Page) (hltv.Extraction, error) {
	id, ok := pathID(page.URL, "team")
	if !ok {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "team id"}
	}

	team := hltv.TeamRecord{
		ID:   id,
		Name: strings.TrimSpace(doc.Find(".profile-team-name").First().Text()),
	}

	country := doc.Find(".team-country").First()
	if title, ok := country.Attr("title"); ok && strings.TrimSpace(title) != "" {
		team.Country = textPtr(title)
	} else {
		team.Country = textPtr(country.Text())
	}

	rankText := strings.TrimSpace(doc.Find(".profile-team-stat .right").First().Text())
	team.WorldRank = parseIntText(strings.TrimPrefix(rankText, "#"))

	var roster []hltv.RosterSeat
	doc.Find(".bodyshot-team a").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		playerID, ok := pathID(href, "player")
		if !ok {
			return
		}
		nickname := strings.TrimSpace(sel.Text())
		if nickname == "" {
			nickname, _ = sel.Attr("title")
			nickname = strings.TrimSpace(nickname)
		}
		if nickname == "" {
			return
		}
		roster = append(roster, hltv.RosterSeat{
			PlayerID: playerID,
			Nickname: nickname,
			Role:     "player",
		})
	})

	return hltv.Extraction{Kind: page.Kind, Team: &team, Roster: roster}, nil
}

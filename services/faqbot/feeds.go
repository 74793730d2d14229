package faqbot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/calendar"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/htmlutil"
)

// cellText extracts the normalized text of a selection's first node.
// node-level extraction keeps text from nested markup (links, bold
// trainer names) that the site sprinkles inside cells.
func cellText(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	return htmlutil.CollapseWhitespace(htmlutil.GetText(sel.Nodes[0]))
}

type LeaderboardRow struct {
	Rank    int    `json:"rank"`
	Trainer string `json:"trainer"`
	Level   int64  `json:"level"`
}

// ParseLeaderboard extracts the ranked trainer table. an empty table
// is an error, not an empty payload: storing it would poison the
// cache until the next forced refresh.
func ParseLeaderboard(html string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var rows []LeaderboardRow
	doc.Find("table.leaderboard tr").Each(func(i int, sel *goquery.Selection) {
		cells := sel.Find("td")
		if cells.Length() < 3 {
			return
		}
		rank, err := strconv.Atoi(cellText(cells.Eq(0)))
		if err != nil {
			return
		}
		level, err := strconv.ParseInt(
			strings.ReplaceAll(cellText(cells.Eq(2)), ",", ""),
			10, 64,
		)
		if err != nil {
			return
		}
		rows = append(rows, LeaderboardRow{
			Rank:    rank,
			Trainer: cellText(cells.Eq(1)),
			Level:   level,
		})
	})
	if len(rows) == 0 {
		return nil, fmt.Errorf("no leaderboard rows found")
	}

	return json.Marshal(rows)
}

func ValidateLeaderboard(payload []byte) bool {
	var rows []LeaderboardRow
	err := json.Unmarshal(payload, &rows)
	return err == nil && len(rows) > 0
}

type EggListing struct {
	Species string `json:"species"`
	// HatchesIn is the remaining incubation shown on the page, kept
	// as text since the site formats it inconsistently
	HatchesIn string `json:"hatches_in"`
}

func ParseEggs(html string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var eggs []EggListing
	doc.Find("div.egg").Each(func(i int, sel *goquery.Selection) {
		species := cellText(sel.Find("span.species"))
		if species == "" {
			return
		}
		eggs = append(eggs, EggListing{
			Species:   species,
			HatchesIn: cellText(sel.Find("span.hatch")),
		})
	})
	if len(eggs) == 0 {
		return nil, fmt.Errorf("no egg listings found")
	}

	return json.Marshal(eggs)
}

func ValidateEggs(payload []byte) bool {
	var eggs []EggListing
	err := json.Unmarshal(payload, &eggs)
	return err == nil && len(eggs) > 0
}

// DefaultFeeds is the production feed set.
func DefaultFeeds() []Feed {
	return []Feed{
		{
			Name:     "leaderboard",
			Endpoint: "/leaderboard.php",
			TTL:      24 * time.Hour,
			Parse:    ParseLeaderboard,
			Validate: ValidateLeaderboard,
			// wait out the morning reset churn
			Hour:     9,
			Policy:   calendar.MarkFiredOnError,
			Midnight: true,
		},
		{
			Name:     "eggs",
			Endpoint: "/eggs.php",
			TTL:      time.Hour,
			Parse:    ParseEggs,
			Validate: ValidateEggs,
			Hour:     calendar.NoHourGate,
			Policy:   calendar.RetryUntilSuccess,
		},
	}
}

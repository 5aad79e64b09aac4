// Package scrape extracts the clinic testing calendar from a saved lab
// results page.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/covidboard/internal/dataset"
	"github.com/TobiSchelling/covidboard/internal/transform"
)

var ErrNoDays = errors.New("no test days found")

// Columns of the scraped table, in output order.
var Columns = []string{"date", "total", "negative", "positive"}

// Day is one calendar cell. Counts stay as page text; the pipeline parses
// them like any other sheet value.
type Day struct {
	Date     time.Time
	Total    string
	Negative string
	Positive string
}

var months = map[string]time.Month{
	"январь": time.January, "января": time.January, "january": time.January,
	"февраль": time.February, "февраля": time.February, "february": time.February,
	"март": time.March, "марта": time.March, "march": time.March,
	"апрель": time.April, "апреля": time.April, "april": time.April,
	"май": time.May, "мая": time.May, "may": time.May,
	"июнь": time.June, "июня": time.June, "june": time.June,
	"июль": time.July, "июля": time.July, "july": time.July,
	"август": time.August, "августа": time.August, "august": time.August,
	"сентябрь": time.September, "сентября": time.September, "september": time.September,
	"октябрь": time.October, "октября": time.October, "october": time.October,
	"ноябрь": time.November, "ноября": time.November, "november": time.November,
	"декабрь": time.December, "декабря": time.December, "december": time.December,
}

var (
	yearRe   = regexp.MustCompile(`(\d{4})`)
	numMonth = regexp.MustCompile(`^(\d{1,2})[./-](\d{4})$|^(\d{4})[./-](\d{1,2})$`)
	dayRe    = regexp.MustCompile(`^day-(\d{1,2})$`)
)

// parseMonth reads a calendar heading such as "Январь 2021" or "01.2021".
func parseMonth(heading string) (int, time.Month, error) {
	h := strings.ToLower(strings.Join(strings.Fields(heading), " "))
	if m := numMonth.FindStringSubmatch(h); m != nil {
		y, mo := m[2], m[1]
		if m[3] != "" {
			y, mo = m[3], m[4]
		}
		year, _ := strconv.Atoi(y)
		month, _ := strconv.Atoi(mo)
		if month >= 1 && month <= 12 {
			return year, time.Month(month), nil
		}
	}
	year := yearRe.FindString(h)
	if year == "" {
		return 0, 0, fmt.Errorf("month heading %q has no year", heading)
	}
	for _, word := range strings.Fields(h) {
		if m, ok := months[word]; ok {
			y, _ := strconv.Atoi(year)
			return y, m, nil
		}
	}
	return 0, 0, fmt.Errorf("month heading %q has no month name", heading)
}

// ParseInvitro reads every month group of the page. Days come back sorted.
func ParseInvitro(r io.Reader) ([]Day, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var (
		days []Day
		perr error
	)
	doc.Find(`div[id^="group-"]`).EachWithBreak(func(_ int, group *goquery.Selection) bool {
		heading := group.Find(`div[class*="-month"]`).First().Text()
		year, month, err := parseMonth(heading)
		if err != nil {
			perr = err
			return false
		}
		group.Find(`div[id^="day-"]`).EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			id, _ := cell.Attr("id")
			m := dayRe.FindStringSubmatch(id)
			if m == nil {
				perr = fmt.Errorf("unexpected day id %q", id)
				return false
			}
			day, _ := strconv.Atoi(m[1])
			date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
			if date.Month() != month {
				perr = fmt.Errorf("day id %q outside %s %d", id, month, year)
				return false
			}
			days = append(days, Day{
				Date:     date,
				Total:    cellText(cell, "-total"),
				Negative: cellText(cell, "-negative"),
				Positive: cellText(cell, "-positive"),
			})
			return true
		})
		return perr == nil
	})
	if perr != nil {
		return nil, perr
	}
	if len(days) == 0 {
		return nil, ErrNoDays
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

func cellText(cell *goquery.Selection, class string) string {
	return strings.TrimSpace(cell.Find(`div[class*="` + class + `"]`).First().Text())
}

// Table turns scraped days into a raw table with Columns.
func Table(name string, days []Day) (*dataset.Table, error) {
	records := make([][]string, 0, len(days)+1)
	records = append(records, Columns)
	for _, d := range days {
		records = append(records, []string{transform.FormatDate(d.Date), d.Total, d.Negative, d.Positive})
	}
	return dataset.FromRecords(name, records)
}

// Load reads a saved page from disk and returns its table.
func Load(ctx context.Context, name, path string) (*dataset.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	days, err := ParseInvitro(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Table(name, days)
}

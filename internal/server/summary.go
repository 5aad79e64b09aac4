package server

import (
	"github.com/TobiSchelling/covidboard/internal/dataset"
	"github.com/TobiSchelling/covidboard/internal/transform"
)

// Column names of the main table that feed the sidebar.
const (
	colCases      = "всего"
	colDeaths     = "умерли от ковид"
	colDischarged = "выписали"
	colRate       = "infection rate"
)

// Summary holds the sidebar aggregates of the main table.
type Summary struct {
	Updated    string
	Cases      int64
	Share      float64 // cases per 100 inhabitants
	Deaths     int64
	Lethality  float64 // deaths per 100 cases
	Discharged int64
	RateHigh   int // days with infection rate >= 1
	RateLow    int
}

func sum(t *dataset.Table, col string) (int64, error) {
	vals, err := t.Floats(col)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, v := range vals {
		total += v
	}
	return int64(total), nil
}

// Summarize aggregates the main table for the sidebar.
func Summarize(t *dataset.Table, dateCol string, population int) (Summary, error) {
	var (
		s   Summary
		err error
	)
	if s.Cases, err = sum(t, colCases); err != nil {
		return s, err
	}
	if s.Deaths, err = sum(t, colDeaths); err != nil {
		return s, err
	}
	if s.Discharged, err = sum(t, colDischarged); err != nil {
		return s, err
	}
	if population > 0 {
		s.Share = transform.Round2(float64(s.Cases) * 100 / float64(population))
	}
	if s.Cases > 0 {
		s.Lethality = transform.Round2(float64(s.Deaths) * 100 / float64(s.Cases))
	}

	dates, err := t.Cells(dateCol)
	if err != nil {
		return s, err
	}
	if len(dates) > 0 {
		s.Updated = dates[len(dates)-1]
	}

	if t.HasColumn(colRate) {
		rates, err := t.Floats(colRate)
		if err != nil {
			return s, err
		}
		for _, r := range rates {
			if r >= 1 {
				s.RateHigh++
			} else {
				s.RateLow++
			}
		}
	}
	return s, nil
}

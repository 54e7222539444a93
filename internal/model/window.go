package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// marketWindowRe matches titles of the form
// "Bitcoin Up or Down - July 31, 2:00PM-2:15PM ET".
var marketWindowRe = regexp.MustCompile(
	`^(?P<asset>[A-Za-z0-9 ]+?) Up or Down - ` +
		`(?P<month>[A-Za-z]+) (?P<day>\d{1,2}), ` +
		`(?P<start>\d{1,2}:\d{2}[AP]M)-(?P<end>\d{1,2}:\d{2}[AP]M) ET$`)

// ParseMarketWindow parses a window market's title into a MarketWindow. now
// supplies the year (titles never carry one); an end time at or before the
// start time rolls over to the next day.
// Returns nil, nil when title does not match the window-market shape.
func ParseMarketWindow(title string, now time.Time) (*MarketWindow, error) {
	m := marketWindowRe.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return nil, nil
	}
	groups := make(map[string]string, len(m))
	for i, name := range marketWindowRe.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		groups[name] = m[i]
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load America/New_York: %w", err)
	}

	startLocal, err := parseETTime(groups["month"], groups["day"], groups["start"], now, loc)
	if err != nil {
		return nil, err
	}
	endLocal, err := parseETTime(groups["month"], groups["day"], groups["end"], now, loc)
	if err != nil {
		return nil, err
	}
	if !endLocal.After(startLocal) {
		endLocal = endLocal.AddDate(0, 0, 1)
	}

	asset := strings.ToLower(groups["asset"])
	return &MarketWindow{
		Asset:           groups["asset"],
		StartTS:         startLocal.UTC(),
		EndTS:           endLocal.UTC(),
		DurationSeconds: int64(endLocal.Sub(startLocal).Seconds()),
		WindowID:        asset + ":" + startLocal.Format("20060102T1504"),
	}, nil
}

func parseETTime(month, day, clock string, now time.Time, loc *time.Location) (time.Time, error) {
	nowET := now.In(loc)
	dayNum, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	layout := "January 2 2006 3:04PM"
	raw := fmt.Sprintf("%s %d %d %s", month, dayNum, nowET.Year(), clock)
	parsed, err := time.ParseInLocation(layout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse market window time %q: %w", raw, err)
	}
	return parsed, nil
}

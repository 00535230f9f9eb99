package summary

import (
	"fmt"
	"sort"
)

// Filter narrows the summary bar chart by absence count.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterAbsent1  Filter = "absent-1"
	FilterAbsent2  Filter = "absent-2"
	FilterAbsent3p Filter = "absent-3+"
)

// ChartLimit is how many students the summary chart shows.
const ChartLimit = 10

const labelRunes = 10

// ParseFilter accepts the query values above; empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterAbsent1, FilterAbsent2, FilterAbsent3p:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Bar is one student's bar.
type Bar struct {
	Label     string `json:"name"`
	FullName  string `json:"fullName"`
	OnTime    int    `json:"onTime"`
	Late      int    `json:"late"`
	Total     int    `json:"total"`
	Absent    int    `json:"absent"`
	StudentID string `json:"studentId"`
}

// BarChart shapes a Result for the chart. Summary results are filtered,
// sorted by total descending and cut to ChartLimit; daily results list every
// arrival in check-in order.
func BarChart(res Result, filter Filter) []Bar {
	if res.Daily != nil {
		var rows []StudentStat
		rows = append(rows, res.Daily.OnTime...)
		rows = append(rows, res.Daily.Late...)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].LastAttendance.Before(*rows[j].LastAttendance) })
		bars := make([]Bar, 0, len(rows))
		for _, r := range rows {
			bars = append(bars, bar(r, 0))
		}
		return bars
	}

	var bars []Bar
	for _, r := range res.Students {
		b := bar(r, r.AbsentDays)
		if keep(filter, b) {
			bars = append(bars, b)
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Total > bars[j].Total })
	if len(bars) > ChartLimit {
		bars = bars[:ChartLimit]
	}
	if bars == nil {
		bars = []Bar{}
	}
	return bars
}

func keep(f Filter, b Bar) bool {
	switch f {
	case FilterAbsent1:
		return b.Absent == 1
	case FilterAbsent2:
		return b.Absent == 2
	case FilterAbsent3p:
		return b.Absent >= 3
	default:
		return b.Total > 0
	}
}

func bar(r StudentStat, absent int) Bar {
	return Bar{
		Label:     label(r.Name),
		FullName:  r.Name,
		OnTime:    r.OnTimeCount,
		Late:      r.LateCount,
		Total:     r.Count,
		Absent:    absent,
		StudentID: r.StudentID,
	}
}

func label(name string) string {
	runes := []rune(name)
	if len(runes) > labelRunes {
		return string(runes[:labelRunes]) + "..."
	}
	return name
}

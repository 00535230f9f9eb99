// Package export builds the monthly attendance workbook for class owners.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"classattend/internal/attendance"
)

// Cell markers.
const (
	MarkOnTime = "✓"
	MarkLate   = "!"
	MarkAbsent = "X"
)

const (
	DefaultLateAfter   = 15 * time.Minute
	DefaultAbsentAfter = 3 * time.Hour
)

var thaiMonths = [...]string{
	"มกราคม", "กุมภาพันธ์", "มีนาคม", "เมษายน", "พฤษภาคม", "มิถุนายน",
	"กรกฎาคม", "สิงหาคม", "กันยายน", "ตุลาคม", "พฤศจิกายน", "ธันวาคม",
}

// Options tune BuildMonthly.
type Options struct {
	Location    *time.Location
	LateAfter   time.Duration
	AbsentAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.LateAfter <= 0 {
		o.LateAfter = DefaultLateAfter
	}
	if o.AbsentAfter <= 0 {
		o.AbsentAfter = DefaultAbsentAfter
	}
	return o
}

type cell struct {
	present bool
	late    bool
}

// Row is one student line of the report.
type Row struct {
	No        int
	StudentID string
	Name      string
	Marks     []string
	Attended  int
	Absent    int
	Late      int
}

// Report is the tabular monthly view.
type Report struct {
	ClassName  string
	MonthLabel string
	Dates      []string
	Rows       []Row
}

// Header returns the column titles.
func (r Report) Header() []string {
	h := []string{"No.", "Student ID", "Full Name"}
	h = append(h, r.Dates...)
	return append(h, "Total", "Attend", "Absent", "Late")
}

// Values returns row i as cell values in header order.
func (r Report) Values(i int) []any {
	row := r.Rows[i]
	out := []any{row.No, row.StudentID, row.Name}
	for _, m := range row.Marks {
		out = append(out, m)
	}
	total := fmt.Sprintf("%d/%d", row.Attended, len(r.Dates))
	return append(out, total, row.Attended, row.Absent, row.Late)
}

// BuildMonthly buckets events by dd/mm in opts.Location. Each bucket's
// baseline is its earliest event; arrivals after baseline+LateAfter are late
// and after baseline+AbsentAfter are dropped as if the student never came.
// Students are every student id seen in events, ordered by first check-in.
func BuildMonthly(className string, events []attendance.CheckInEvent, opts Options) Report {
	opts = opts.withDefaults()
	sorted := append([]attendance.CheckInEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	rep := Report{ClassName: className}
	if len(sorted) == 0 {
		return rep
	}

	baseline := make(map[string]time.Time)
	for _, e := range sorted {
		key := bucket(e.Timestamp, opts.Location)
		if _, ok := baseline[key]; !ok {
			baseline[key] = e.Timestamp
		}
	}

	var (
		order []string
		names = make(map[string]string)
		cells = make(map[string]map[string]cell)
	)
	for _, e := range sorted {
		if _, seen := names[e.StudentID]; !seen {
			order = append(order, e.StudentID)
			names[e.StudentID] = firstNonEmpty(e.DisplayName, e.StudentID)
			cells[e.StudentID] = make(map[string]cell)
		}
		key := bucket(e.Timestamp, opts.Location)
		base := baseline[key]
		if e.Timestamp.After(base.Add(opts.AbsentAfter)) {
			continue
		}
		cells[e.StudentID][key] = cell{present: true, late: e.Timestamp.After(base.Add(opts.LateAfter))}
	}

	for key := range baseline {
		rep.Dates = append(rep.Dates, key)
	}
	sort.Slice(rep.Dates, func(i, j int) bool { return dateLess(rep.Dates[i], rep.Dates[j]) })

	for i, id := range order {
		row := Row{No: i + 1, StudentID: id, Name: names[id]}
		for _, d := range rep.Dates {
			c := cells[id][d]
			switch {
			case c.present && c.late:
				row.Attended++
				row.Late++
				row.Marks = append(row.Marks, MarkLate)
			case c.present:
				row.Attended++
				row.Marks = append(row.Marks, MarkOnTime)
			default:
				row.Marks = append(row.Marks, MarkAbsent)
			}
		}
		row.Absent = len(rep.Dates) - row.Attended
		rep.Rows = append(rep.Rows, row)
	}

	rep.MonthLabel = MonthLabel(sorted[0].Timestamp, opts.Location)
	return rep
}

func bucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01")
}

// dateLess orders dd/mm keys by month, then day.
func dateLess(a, b string) bool {
	da, ma := splitKey(a)
	db, mb := splitKey(b)
	if ma != mb {
		return ma < mb
	}
	return da < db
}

func splitKey(k string) (day, month int) {
	parts := strings.SplitN(k, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	day, _ = strconv.Atoi(parts[0])
	month, _ = strconv.Atoi(parts[1])
	return day, month
}

// MonthLabel renders t as a Thai month name with the Buddhist-era year.
func MonthLabel(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return fmt.Sprintf("%s %d", thaiMonths[t.Month()-1], t.Year()+543)
}

// Filename is the download name for a class report exported on day.
func Filename(className string, day time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r >= 'ก' && r <= '๙':
			return r
		}
		return '_'
	}, className)
	return fmt.Sprintf("attendance_%s_%s.xlsx", safe, day.Format("2006-01-02"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

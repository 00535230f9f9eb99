// Package summary turns roster and check-in events into per-student and
// per-day attendance statistics.
package summary

import (
	"sort"
	"time"

	"classattend/internal/attendance"
)

type Mode string

const (
	ModeSummary Mode = "summary"
	ModeDaily   Mode = "daily"
)

// Input is everything Aggregate needs. It is a snapshot; Aggregate has no side effects.
type Input struct {
	Roster    []attendance.RosterEntry
	Days      attendance.Days
	Viewer    attendance.Identity
	Owner     bool
	Mode      Mode
	Date      string
	Threshold time.Duration
}

// StudentStat is one student's row.
type StudentStat struct {
	ID             string     `json:"uid"`
	Name           string     `json:"name"`
	StudentID      string     `json:"studentId"`
	Email          string     `json:"email"`
	Count          int        `json:"count"`
	OnTimeCount    int        `json:"onTimeCount"`
	LateCount      int        `json:"lateCount"`
	AbsentDays     int        `json:"absentDays"`
	LastAttendance *time.Time `json:"lastAttendance"`
	Status         string     `json:"status"`
}

// Stats are the headline numbers of the summary view.
type Stats struct {
	TotalStudents          int `json:"totalStudents"`
	StudentsWithAttendance int `json:"studentsWithAttendance"`
	TotalAbsentStudents    int `json:"totalAbsentStudents"`
	TotalOnTime            int `json:"totalOnTime"`
	TotalLate              int `json:"totalLate"`
}

// Daily is the drill-down for one date.
type Daily struct {
	Date            string        `json:"date"`
	OnTime          []StudentStat `json:"onTimeStudents"`
	Late            []StudentStat `json:"lateStudents"`
	TotalStudents   int           `json:"totalStudents"`
	AttendanceCount int           `json:"attendanceCount"`
	Absent          int           `json:"absent"`
}

// Result is the output of Aggregate.
type Result struct {
	Mode           Mode          `json:"mode"`
	TotalClassDays int           `json:"totalClassDays"`
	AvailableDates []string      `json:"availableDates"`
	Students       []StudentStat `json:"students,omitempty"`
	Stats          *Stats        `json:"stats,omitempty"`
	Daily          *Daily        `json:"daily,omitempty"`
}

type tally struct {
	onTime, late, total int
	last                time.Time
	email               string
}

// Aggregate computes the summary or daily view for in.
func Aggregate(in Input) Result {
	dates := in.Days.Keys()
	res := Result{Mode: in.Mode, TotalClassDays: len(dates), AvailableDates: dates}
	if res.AvailableDates == nil {
		res.AvailableDates = []string{}
	}
	if in.Mode == ModeDaily {
		d := daily(in)
		res.Daily = &d
		return res
	}
	res.Mode = ModeSummary
	res.Students = summarize(in, len(dates))
	st := stats(res.Students)
	res.Stats = &st
	return res
}

func visible(in Input, e attendance.CheckInEvent) bool {
	return in.Owner || e.AccountID == in.Viewer.AccountID
}

func summarize(in Input, classDays int) []StudentStat {
	tallies := make(map[string]*tally)
	for _, key := range in.Days.Keys() {
		for _, c := range attendance.Classify(in.Days.Events(key), in.Threshold) {
			e := c.Event
			if !visible(in, e) {
				continue
			}
			id := attendance.NormalizeStudentID(e.StudentID)
			t, ok := tallies[id]
			if !ok {
				t = &tally{email: e.Email}
				tallies[id] = t
			}
			if c.Late {
				t.late++
			} else {
				t.onTime++
			}
			t.total++
			if e.Timestamp.After(t.last) {
				t.last = e.Timestamp
			}
		}
	}

	out := make([]StudentStat, 0, len(in.Roster))
	for _, r := range in.Roster {
		t, ok := tallies[attendance.NormalizeStudentID(r.StudentID)]
		if !in.Owner && !ok {
			continue
		}
		row := StudentStat{ID: r.ID, Name: r.Name, StudentID: r.StudentID, Status: r.Status}
		if ok {
			row.Email = t.email
			row.Count = t.total
			row.OnTimeCount = t.onTime
			row.LateCount = t.late
			last := t.last
			row.LastAttendance = &last
		}
		row.AbsentDays = classDays - row.Count
		if row.AbsentDays < 0 {
			row.AbsentDays = 0
		}
		out = append(out, row)
		if !in.Owner {
			break
		}
	}
	return out
}

func stats(rows []StudentStat) Stats {
	s := Stats{TotalStudents: len(rows)}
	for _, r := range rows {
		if r.Count > 0 {
			s.StudentsWithAttendance++
		}
		s.TotalOnTime += r.OnTimeCount
		s.TotalLate += r.LateCount
	}
	s.TotalAbsentStudents = s.TotalStudents - s.StudentsWithAttendance
	return s
}

func daily(in Input) Daily {
	d := Daily{Date: in.Date, OnTime: []StudentStat{}, Late: []StudentStat{}, TotalStudents: len(in.Roster)}
	if !in.Owner {
		d.TotalStudents = 1
	}
	for _, c := range attendance.Classify(in.Days.Events(in.Date), in.Threshold) {
		e := c.Event
		if !visible(in, e) {
			continue
		}
		ts := e.Timestamp
		row := StudentStat{
			ID:             e.AccountID,
			Name:           e.DisplayName,
			StudentID:      e.StudentID,
			Email:          e.Email,
			Count:          1,
			LastAttendance: &ts,
			Status:         e.Status,
		}
		if c.Late {
			row.LateCount = 1
			d.Late = append(d.Late, row)
		} else {
			row.OnTimeCount = 1
			d.OnTime = append(d.OnTime, row)
		}
	}
	byTime := func(list []StudentStat) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].LastAttendance.Before(*list[j].LastAttendance) })
	}
	byTime(d.OnTime)
	byTime(d.Late)
	d.AttendanceCount = len(d.OnTime) + len(d.Late)
	d.Absent = d.TotalStudents - d.AttendanceCount
	if d.Absent < 0 {
		d.Absent = 0
	}
	return d
}

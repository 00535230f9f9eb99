package attendance

import (
	"testing"
	"time"
)

func TestParseClassID(t *testing.T) {
	tests := []struct {
		payload string
		want    string
		ok      bool
	}{
		{"https://attend.example/class/abc123", "abc123", true},
		{"  https://attend.example/class/abc123  ", "abc123", true},
		{"https://attend.example/x/y/z?utm=1", "z", true},
		{"https://attend.example/class/", "", false},
		{"https://attend.example", "", false},
		{"abc123", "", false},
		{"/class/abc123", "", false},
		{"://broken", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseClassID(tt.payload)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseClassID(%q) = %q, %v; want %q, %v", tt.payload, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCodeURLRoundTrip(t *testing.T) {
	u := CodeURL("http://localhost:3000/", "5f0c")
	if u != "http://localhost:3000/class/5f0c" {
		t.Fatalf("CodeURL = %q", u)
	}
	if id, ok := ParseClassID(u); !ok || id != "5f0c" {
		t.Fatalf("ParseClassID(CodeURL) = %q, %v", id, ok)
	}
}

func TestMatchRoster(t *testing.T) {
	roster := []RosterEntry{
		{ID: "1", StudentID: "6501 234"},
		{ID: "2", StudentID: " 650999 "},
		{ID: "3", StudentID: "650111"},
	}
	tests := []struct {
		studentID string
		wantID    string
		ok        bool
	}{
		{"650111", "3", true},
		{"650999", "2", true},
		{"6501234", "1", true},
		{"65 01 234", "1", true},
		{"000000", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchRoster(roster, tt.studentID)
		if ok != tt.ok || got.ID != tt.wantID {
			t.Errorf("MatchRoster(%q) = %q, %v; want %q, %v", tt.studentID, got.ID, ok, tt.wantID, tt.ok)
		}
	}
}

func TestDateKeyUsesLocation(t *testing.T) {
	bkk := time.FixedZone("ICT", 7*3600)
	ts := time.Date(2025, 3, 3, 20, 0, 0, 0, time.UTC)
	if got := DateKey(ts, bkk); got != "2025-03-04" {
		t.Fatalf("DateKey = %q, want 2025-03-04", got)
	}
	if got := DateKey(ts, time.UTC); got != "2025-03-03" {
		t.Fatalf("DateKey UTC = %q", got)
	}
}

func TestDailyLists(t *testing.T) {
	days := make(Days)
	days.Add(CheckInEvent{DateKey: "2025-03-03", AccountID: "a", Timestamp: at(9, 5)})
	days.Add(CheckInEvent{DateKey: "2025-03-03", AccountID: "b", Timestamp: at(9, 0)})
	days.Add(CheckInEvent{DateKey: "2025-03-05", AccountID: "b", Timestamp: at(9, 0).AddDate(0, 0, 2)})

	owner := DailyLists(days, Identity{AccountID: "teacher"}, true)
	if len(owner) != 2 || owner[0].Date != "2025-03-05" {
		t.Fatalf("owner lists = %+v", owner)
	}
	if owner[1].Events[0].AccountID != "b" {
		t.Fatalf("expected ascending time within day, got %+v", owner[1].Events)
	}

	self := DailyLists(days, Identity{AccountID: "a"}, false)
	if len(self) != 1 || len(self[0].Events) != 1 || self[0].Events[0].AccountID != "a" {
		t.Fatalf("non-owner lists = %+v", self)
	}
}

func TestDaysAddRejectsDuplicate(t *testing.T) {
	days := make(Days)
	e := CheckInEvent{DateKey: "2025-03-03", AccountID: "a", Timestamp: at(9, 0)}
	if !days.Add(e) {
		t.Fatal("first add should succeed")
	}
	e.Timestamp = at(10, 0)
	if days.Add(e) {
		t.Fatal("second add for same account and day should fail")
	}
	if got := days["2025-03-03"]["a"].Timestamp; !got.Equal(at(9, 0)) {
		t.Fatal("original event must not be overwritten")
	}
}

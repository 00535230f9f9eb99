package attendance

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DateKeyLayout is the canonical calendar-day key for per-day event maps.
const DateKeyLayout = "2006-01-02"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyCheckedIn = errors.New("already checked in for this day")
	// ErrDecode marks stored data that does not satisfy the schema.
	ErrDecode = errors.New("decode stored record")
)

// Identity is the caller as asserted by the identity provider.
type Identity struct {
	AccountID   string
	Email       string
	DisplayName string
}

// Profile is the account record kept alongside the identity.
type Profile struct {
	AccountID   string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"name"`
	StudentID   string    `json:"studentId"`
	Institution string    `json:"institution"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Class is a teacher-owned class. Counts are derived from CheckedInMembers.
type Class struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	CreatedBy        string     `json:"createdBy"`
	OwnerEmail       string     `json:"ownerEmail"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastCheckedIn    *time.Time `json:"lastCheckedIn,omitempty"`
	Members          []string   `json:"members"`
	CheckedInMembers []string   `json:"checkedInMembers"`
}

// OwnedBy is the single ownership predicate: the creating account id.
func (c Class) OwnedBy(who Identity) bool {
	return who.AccountID != "" && c.CreatedBy == who.AccountID
}

func (c Class) CheckedInCount() int { return len(c.CheckedInMembers) }

// CheckInEvent is one admitted check-in. Immutable once written.
type CheckInEvent struct {
	ClassID     string    `json:"classId"`
	DateKey     string    `json:"date"`
	AccountID   string    `json:"uid"`
	StudentID   string    `json:"studentId"`
	DisplayName string    `json:"name"`
	Email       string    `json:"email"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e CheckInEvent) validate() error {
	switch {
	case e.ClassID == "", e.AccountID == "", e.DateKey == "":
		return fmt.Errorf("%w: check-in event missing key fields", ErrDecode)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: check-in event %s/%s has no timestamp", ErrDecode, e.DateKey, e.AccountID)
	}
	if _, err := time.Parse(DateKeyLayout, e.DateKey); err != nil {
		return fmt.Errorf("%w: bad date key %q", ErrDecode, e.DateKey)
	}
	return nil
}

// RosterEntry is one enrolled student of a class.
type RosterEntry struct {
	ID             string            `json:"id"`
	ClassID        string            `json:"classId"`
	StudentID      string            `json:"studentId"`
	Name           string            `json:"name"`
	Status         string            `json:"status"`
	Prefix         string            `json:"prefix,omitempty"`
	FirstName      string            `json:"firstName,omitempty"`
	LastName       string            `json:"lastName,omitempty"`
	Nickname       string            `json:"nickname,omitempty"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Department     string            `json:"department,omitempty"`
	Year           string            `json:"year,omitempty"`
	Section        string            `json:"section,omitempty"`
	AdditionalData map[string]string `json:"additionalData,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Days maps a date key to the events of that day keyed by account id.
type Days map[string]map[string]CheckInEvent

// Add inserts e unless the account already has an event that day.
func (d Days) Add(e CheckInEvent) bool {
	day, ok := d[e.DateKey]
	if !ok {
		day = make(map[string]CheckInEvent)
		d[e.DateKey] = day
	}
	if _, dup := day[e.AccountID]; dup {
		return false
	}
	day[e.AccountID] = e
	return true
}

// Keys returns the date keys sorted newest first.
func (d Days) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

// Events returns the day's events in ascending time order.
func (d Days) Events(dateKey string) []CheckInEvent {
	day := d[dateKey]
	out := make([]CheckInEvent, 0, len(day))
	for _, e := range day {
		out = append(out, e)
	}
	sortByTime(out)
	return out
}

// All returns every event in ascending time order.
func (d Days) All() []CheckInEvent {
	var out []CheckInEvent
	for _, day := range d {
		for _, e := range day {
			out = append(out, e)
		}
	}
	sortByTime(out)
	return out
}

func sortByTime(events []CheckInEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].AccountID < events[j].AccountID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// DateKey formats t as a calendar day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateKeyLayout)
}

// DayList is one day's visible check-ins for the class detail view.
type DayList struct {
	Date   string         `json:"date"`
	Events []CheckInEvent `json:"users"`
}

// DailyLists returns per-day check-ins newest day first. Viewers that do not
// own the class only see their own entries; days left empty are omitted.
func DailyLists(days Days, viewer Identity, owner bool) []DayList {
	var out []DayList
	for _, key := range days.Keys() {
		var visible []CheckInEvent
		for _, e := range days.Events(key) {
			if owner || e.AccountID == viewer.AccountID {
				visible = append(visible, e)
			}
		}
		if len(visible) > 0 {
			out = append(out, DayList{Date: key, Events: visible})
		}
	}
	return out
}

func newClassID() string { return uuid.NewString() }

//go:build integration

package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/store/testdb"
)

func TestRepositoryCheckInFlow(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatalf("start db: %v", err)
	}
	defer h.Close()

	repo := NewRepository(h.DB)
	loc := time.UTC
	svc := NewService(repo, nil, loc, nil)
	now := time.Date(2024, 5, 6, 8, 0, 0, 0, loc)
	svc.SetClock(func() time.Time { return now })

	teacher := Identity{AccountID: "t1", Email: "t@example.com", DisplayName: "Teacher"}
	class, err := svc.CreateClass(ctx, "  Physics  ", teacher)
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	if class.Name != "Physics" {
		t.Fatalf("name = %q", class.Name)
	}
	if _, err := repo.AddRosterEntry(ctx, RosterEntry{
		ClassID: class.ID, StudentID: "6501", Name: "Ann", Status: "active",
		AdditionalData: map[string]string{"advisor": "Dr. P"},
	}); err != nil {
		t.Fatalf("AddRosterEntry: %v", err)
	}

	student := Identity{AccountID: "s1", Email: "s@example.com"}
	if _, err := svc.Profile(ctx, student); err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, student, "Ann", " 6501 ", "KMUTT"); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	payload := CodeURL("https://attend.example", class.ID)
	evt, err := svc.CheckIn(ctx, payload, student, "")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if evt.DisplayName != "Ann" || evt.DateKey != "2024-05-06" {
		t.Fatalf("event = %+v", evt)
	}
	if _, err := svc.CheckIn(ctx, payload, student, ""); !errors.Is(err, apperr.AlreadyCheckedIn) {
		t.Fatalf("second CheckIn = %v", err)
	}

	got, err := repo.GetClass(ctx, class.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CheckedInCount() != 1 || got.LastCheckedIn == nil || !got.LastCheckedIn.Equal(now) {
		t.Fatalf("class after check-in = %+v", got)
	}
	joined, err := svc.ListClasses(ctx, student, true)
	if err != nil || len(joined) != 1 || joined[0].ID != class.ID {
		t.Fatalf("joined = %+v, %v", joined, err)
	}

	roster, err := repo.ListRoster(ctx, class.ID)
	if err != nil || len(roster) != 1 || roster[0].AdditionalData["advisor"] != "Dr. P" {
		t.Fatalf("roster = %+v, %v", roster, err)
	}

	if err := svc.DeleteClass(ctx, class.ID, teacher); err != nil {
		t.Fatalf("DeleteClass: %v", err)
	}
	if _, err := repo.GetClass(ctx, class.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetClass after delete = %v", err)
	}
	if days, err := repo.Days(ctx, class.ID); err != nil || len(days) != 0 {
		t.Fatalf("days after delete = %v, %v", days, err)
	}
}

func TestRepositoryConcurrentCheckIns(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatalf("start db: %v", err)
	}
	defer h.Close()

	repo := NewRepository(h.DB)
	class := Class{Name: "Bio", CreatedBy: "t1"}
	if err := repo.CreateClass(ctx, class); err != nil {
		t.Fatal(err)
	}
	owned, _ := repo.ListOwnedClasses(ctx, "t1")
	class = owned[0]

	ts := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := CheckInEvent{
				ClassID: class.ID, DateKey: "2024-05-06", AccountID: string(rune('a' + i)),
				StudentID: "id", Status: "active", Timestamp: ts.Add(time.Duration(i) * time.Second),
			}
			if err := repo.AppendCheckIn(ctx, e); err != nil {
				t.Errorf("AppendCheckIn %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := repo.GetClass(ctx, class.ID)
	if err != nil {
		t.Fatal(err)
	}
	events, _ := repo.DayEvents(ctx, class.ID, "2024-05-06")
	if got.CheckedInCount() != 20 || len(events) != 20 {
		t.Fatalf("count = %d, events = %d", got.CheckedInCount(), len(events))
	}
	if !got.LastCheckedIn.Equal(ts.Add(19 * time.Second)) {
		t.Fatalf("lastCheckedIn = %v", got.LastCheckedIn)
	}
}

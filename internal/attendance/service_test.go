package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/device"
)

type fixture struct {
	svc      *Service
	store    *MemStore
	registry *device.Registry
	bindings *device.MemoryStore
	class    Class
	owner    Identity
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	clock := &now
	nowFn := func() time.Time { return *clock }

	st := NewMemStore(nil)
	bindings := device.NewMemoryStore()
	reg := device.NewRegistry(bindings, nil, device.WithClock(nowFn), device.WithSweepTrigger(func(context.Context) {}))
	svc := NewService(st, reg, time.UTC, nil)
	svc.SetClock(nowFn)

	owner := Identity{AccountID: "teacher", Email: "teacher@example.com", DisplayName: "T"}
	class, err := svc.CreateClass(ctx, "  Data Structures ", owner)
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	for _, sid := range []string{"650001", "650002", "6500 03"} {
		if _, err := st.AddRosterEntry(ctx, RosterEntry{ClassID: class.ID, StudentID: sid, Name: "Student " + sid, Status: "active"}); err != nil {
			t.Fatal(err)
		}
	}
	return &fixture{svc: svc, store: st, registry: reg, bindings: bindings, class: class, owner: owner, clock: clock}
}

func (f *fixture) student(t *testing.T, uid, studentID string) Identity {
	t.Helper()
	who := Identity{AccountID: uid, Email: uid + "@example.com", DisplayName: uid}
	if studentID != "" {
		if _, err := f.svc.UpdateProfile(context.Background(), who, uid, studentID, "KU"); err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
	}
	return who
}

func (f *fixture) code() string { return CodeURL("https://attend.example", f.class.ID) }

func wantCode(t *testing.T, err error, want apperr.Definition) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want.Code)
	}
	if got := apperr.From(err); got.Code != want.Code {
		t.Fatalf("error code = %s (%v), want %s", got.Code, err, want.Code)
	}
}

func TestCreateClassTrimsName(t *testing.T) {
	f := newFixture(t)
	if f.class.Name != "Data Structures" {
		t.Fatalf("Name = %q", f.class.Name)
	}
	if !f.class.OwnedBy(f.owner) {
		t.Fatal("creator should own the class")
	}
	if _, err := f.svc.CreateClass(context.Background(), "   ", f.owner); err == nil {
		t.Fatal("expected empty name rejection")
	}
}

func TestCheckInSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	who := f.student(t, "u1", "650001")

	evt, err := f.svc.CheckIn(ctx, f.code(), who, "dev-1")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if evt.DateKey != "2025-03-03" || evt.StudentID != "650001" || evt.Status != "active" {
		t.Fatalf("event = %+v", evt)
	}
	if evt.DisplayName != "Student 650001" {
		t.Fatalf("DisplayName = %q, want roster name", evt.DisplayName)
	}

	c, _ := f.store.GetClass(ctx, f.class.ID)
	if c.CheckedInCount() != 1 || c.LastCheckedIn == nil {
		t.Fatalf("class after check-in = %+v", c)
	}

	b, err := f.bindings.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("device not bound: %v", err)
	}
	if b.Email != who.Email || !b.ExpireAt.Equal(f.clock.Add(4*time.Hour)) {
		t.Fatalf("binding = %+v", b)
	}
}

func TestCheckInWhitespaceTolerantMatch(t *testing.T) {
	f := newFixture(t)
	who := f.student(t, "u3", "650003")
	if _, err := f.svc.CheckIn(context.Background(), f.code(), who, ""); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
}

func TestCheckInRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noID := f.student(t, "u-noid", "")
	if _, err := f.svc.Profile(ctx, noID); err != nil {
		t.Fatal(err)
	}
	stranger := f.student(t, "u-x", "999999")
	enrolled := f.student(t, "u2", "650002")

	tests := []struct {
		name    string
		payload string
		who     Identity
		want    apperr.Definition
	}{
		{"malformed payload", "not a url", enrolled, apperr.InvalidCode},
		{"missing student id", f.code(), noID, apperr.NoStudentID},
		{"no profile at all", f.code(), Identity{AccountID: "ghost", Email: "g@example.com"}, apperr.NoStudentID},
		{"unknown class", CodeURL("https://attend.example", "missing"), enrolled, apperr.ClassNotFound},
		{"not on roster", f.code(), stranger, apperr.NotEnrolled},
		{"anonymous", f.code(), Identity{}, apperr.Unauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CheckIn(ctx, tt.payload, tt.who, "")
			wantCode(t, err, tt.want)
		})
	}

	days, _ := f.store.Days(ctx, f.class.ID)
	if len(days) != 0 {
		t.Fatalf("rejections must not write events, got %v", days)
	}
}

func TestCheckInIdempotentPerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	who := f.student(t, "u1", "650001")

	first, err := f.svc.CheckIn(ctx, f.code(), who, "")
	if err != nil {
		t.Fatal(err)
	}
	*f.clock = f.clock.Add(30 * time.Minute)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CheckIn(ctx, f.code(), who, "")
		wantCode(t, err, apperr.AlreadyCheckedIn)
	}

	day, _ := f.store.DayEvents(ctx, f.class.ID, "2025-03-03")
	if len(day) != 1 || !day[0].Timestamp.Equal(first.Timestamp) {
		t.Fatalf("day events = %+v", day)
	}
	c, _ := f.store.GetClass(ctx, f.class.ID)
	if c.CheckedInCount() != 1 {
		t.Fatalf("CheckedInCount = %d, want 1", c.CheckedInCount())
	}

	*f.clock = f.clock.Add(24 * time.Hour)
	if _, err := f.svc.CheckIn(ctx, f.code(), who, ""); err != nil {
		t.Fatalf("next day check-in: %v", err)
	}
	c, _ = f.store.GetClass(ctx, f.class.ID)
	if c.CheckedInCount() != 1 {
		t.Fatalf("checked-in set should stay a set, got %d", c.CheckedInCount())
	}
}

func TestConcurrentCheckInsDifferentAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.student(t, "ua", "650001")
	b := f.student(t, "ub", "650002")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, who := range []Identity{a, b} {
		wg.Add(1)
		go func(who Identity) {
			defer wg.Done()
			_, err := f.svc.CheckIn(ctx, f.code(), who, "")
			errs <- err
		}(who)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CheckIn: %v", err)
		}
	}

	days, _ := f.store.Days(ctx, f.class.ID)
	if len(days["2025-03-03"]) != 2 {
		t.Fatalf("expected two distinct entries, got %v", days["2025-03-03"])
	}
	c, _ := f.store.GetClass(ctx, f.class.ID)
	got := map[string]bool{}
	for _, id := range c.CheckedInMembers {
		got[id] = true
	}
	if !got["ua"] || !got["ub"] || c.CheckedInCount() != 2 {
		t.Fatalf("CheckedInMembers = %v", c.CheckedInMembers)
	}
}

func TestCheckInDeviceGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.student(t, "ua", "650001")
	b := f.student(t, "ub", "650002")

	if _, err := f.svc.CheckIn(ctx, f.code(), a, "shared-phone"); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.CheckIn(ctx, f.code(), b, "shared-phone")
	wantCode(t, err, apperr.DeviceBound)

	d, err := f.svc.CheckDevice(ctx, "shared-phone", b.Email)
	if err != nil || d.Allowed {
		t.Fatalf("CheckDevice = %+v, %v", d, err)
	}

	*f.clock = f.clock.Add(5 * time.Hour)
	if _, err := f.registry.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CheckIn(ctx, f.code(), b, "shared-phone"); err != nil {
		t.Fatalf("after expiry and sweep: %v", err)
	}
}

func TestLateArrivalBindsForFullTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.student(t, "ua", "650001")
	b := f.student(t, "ub", "650002")
	c := f.student(t, "uc", "650003")

	if _, err := f.svc.CheckIn(ctx, f.code(), a, ""); err != nil {
		t.Fatal(err)
	}
	*f.clock = f.clock.Add(4*time.Hour + 30*time.Minute)
	if _, err := f.svc.CheckIn(ctx, f.code(), b, "phone"); err != nil {
		t.Fatal(err)
	}
	bd, err := f.bindings.Get(ctx, "phone")
	if err != nil {
		t.Fatal(err)
	}
	if want := f.clock.Add(4 * time.Hour); !bd.ExpireAt.Equal(want) {
		t.Fatalf("ExpireAt = %v, want %v", bd.ExpireAt, want)
	}

	*f.clock = f.clock.Add(time.Minute)
	if _, err := f.registry.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.CheckIn(ctx, f.code(), c, "phone")
	wantCode(t, err, apperr.DeviceBound)
}

type failingBinds struct{ *device.MemoryStore }

func (failingBinds) Upsert(context.Context, device.Binding) error { return errors.New("write refused") }

func TestDeviceBindFailureKeepsCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := device.NewRegistry(failingBinds{device.NewMemoryStore()}, nil, device.WithSweepTrigger(func(context.Context) {}))
	f.svc.devices = reg
	who := f.student(t, "u1", "650001")

	if _, err := f.svc.CheckIn(ctx, f.code(), who, "dev"); err != nil {
		t.Fatalf("bind failure must not fail check-in: %v", err)
	}
	day, _ := f.store.DayEvents(ctx, f.class.ID, "2025-03-03")
	if len(day) != 1 {
		t.Fatalf("event should persist, got %d", len(day))
	}
}

type brokenStore struct{ *MemStore }

func (brokenStore) AppendCheckIn(context.Context, CheckInEvent) error {
	return fmt.Errorf("connection reset")
}

func TestCheckInStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.store = brokenStore{f.store}
	who := f.student(t, "u1", "650001")
	_, err := f.svc.CheckIn(context.Background(), f.code(), who, "")
	wantCode(t, err, apperr.StorageFailure)
}

func TestOwnershipFlows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := Identity{AccountID: "intruder", Email: f.owner.Email}

	err := f.svc.DeleteClass(ctx, f.class.ID, other)
	wantCode(t, err, apperr.NotOwner)

	who := f.student(t, "u1", "650001")
	if _, err := f.svc.CheckIn(ctx, f.code(), who, ""); err != nil {
		t.Fatal(err)
	}
	joined, _ := f.svc.ListClasses(ctx, who, true)
	if len(joined) != 1 || joined[0].ID != f.class.ID {
		t.Fatalf("joined = %+v", joined)
	}
	owned, _ := f.svc.ListClasses(ctx, f.owner, false)
	if len(owned) != 1 {
		t.Fatalf("owned = %+v", owned)
	}
	ownerJoined, _ := f.svc.ListClasses(ctx, f.owner, true)
	if len(ownerJoined) != 0 {
		t.Fatalf("joined list must exclude owned classes: %+v", ownerJoined)
	}

	if err := f.svc.DeleteClass(ctx, f.class.ID, f.owner); err != nil {
		t.Fatalf("DeleteClass: %v", err)
	}
	_, err = f.svc.LoadClass(ctx, f.class.ID)
	wantCode(t, err, apperr.ClassNotFound)
}

func TestUpdateProfileRequiresStudentID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateProfile(context.Background(), Identity{AccountID: "u"}, "n", "   ", "")
	wantCode(t, err, apperr.InvalidInput)

	p, err := f.svc.UpdateProfile(context.Background(), Identity{AccountID: "u", Email: "u@x"}, " Name ", " 123 ", " KU ")
	if err != nil {
		t.Fatal(err)
	}
	if p.StudentID != "123" || p.DisplayName != "Name" || p.Institution != "KU" {
		t.Fatalf("profile = %+v", p)
	}
}

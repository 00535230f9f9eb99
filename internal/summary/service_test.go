package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/feed"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setup(t *testing.T) (*Service, *attendance.MemStore, attendance.Class, attendance.Identity) {
	t.Helper()
	hub := feed.NewHub()
	st := attendance.NewMemStore(hub)
	classes := attendance.NewService(st, nil, time.UTC, nil)
	owner := attendance.Identity{AccountID: "teacher", Email: "t@x"}
	c, err := classes.CreateClass(context.Background(), "Physics", owner)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"S1", "S2"} {
		st.AddRosterEntry(context.Background(), attendance.RosterEntry{ClassID: c.ID, StudentID: id, Name: id, Status: "active"})
	}
	return NewService(classes, hub, 0, nil), st, c, owner
}

func TestComputeValidatesDate(t *testing.T) {
	svc, _, c, owner := setup(t)
	_, err := svc.Compute(context.Background(), Query{ClassID: c.ID, Viewer: owner, Mode: ModeDaily, Date: "03/03"})
	if !errors.Is(err, apperr.InvalidInput) {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
	_, err = svc.Compute(context.Background(), Query{ClassID: "nope", Viewer: owner, Mode: ModeSummary})
	if !errors.Is(err, apperr.ClassNotFound) {
		t.Fatalf("err = %v, want CLASS_NOT_FOUND", err)
	}
}

func TestWatchRecomputesOnWrite(t *testing.T) {
	svc, st, c, owner := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan Result, 8)
	sub := svc.Subscribe(c.ID)
	done := make(chan error, 1)
	go func() {
		done <- svc.Watch(ctx, Query{ClassID: c.ID, Viewer: owner, Mode: ModeSummary}, sub, func(r Result) error {
			results <- r
			return nil
		})
	}()

	next := func() Result {
		select {
		case r := <-results:
			return r
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for recompute")
			return Result{}
		}
	}

	first := next()
	if first.Stats.StudentsWithAttendance != 0 {
		t.Fatalf("initial snapshot = %+v", first.Stats)
	}

	ts := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	if err := st.AppendCheckIn(ctx, attendance.CheckInEvent{
		ClassID: c.ID, DateKey: "2025-03-03", AccountID: "u1", StudentID: "S1", Timestamp: ts,
	}); err != nil {
		t.Fatal(err)
	}

	var got Result
	for i := 0; i < 3; i++ {
		got = next()
		if got.Stats.StudentsWithAttendance == 1 {
			break
		}
	}
	if got.Stats.StudentsWithAttendance != 1 || got.TotalClassDays != 1 {
		t.Fatalf("after write = %+v", got.Stats)
	}

	sub.Cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after Cancel")
	}
}

func TestWatchStopsWhenClassDeleted(t *testing.T) {
	svc, st, c, owner := setup(t)
	ctx := context.Background()
	sub := svc.Subscribe(c.ID)
	calls := 0
	errc := make(chan error, 1)
	go func() {
		errc <- svc.Watch(ctx, Query{ClassID: c.ID, Viewer: owner, Mode: ModeSummary}, sub, func(Result) error {
			calls++
			if calls == 1 {
				return st.DeleteClass(ctx, c.ID)
			}
			return nil
		})
	}()
	select {
	case err := <-errc:
		if !errors.Is(err, apperr.ClassNotFound) {
			t.Fatalf("Watch err = %v, want CLASS_NOT_FOUND", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestWatchLogsOpenStreams(t *testing.T) {
	svc, _, c, owner := setup(t)
	core, logs := observer.New(zapcore.DebugLevel)
	svc.log = zap.New(core)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other := svc.Subscribe(c.ID)
	other.Start()
	defer other.Cancel()

	first := make(chan struct{}, 1)
	sub := svc.Subscribe(c.ID)
	go svc.Watch(ctx, Query{ClassID: c.ID, Viewer: owner, Mode: ModeSummary}, sub, func(Result) error {
		select {
		case first <- struct{}{}:
		default:
		}
		return nil
	})
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot emitted")
	}

	entries := logs.FilterMessage("live summary opened").All()
	if len(entries) != 1 {
		t.Fatalf("got %d open entries", len(entries))
	}
	if n := entries[0].ContextMap()["subscribers"]; n != int64(2) {
		t.Fatalf("subscribers = %v, want 2", n)
	}
}

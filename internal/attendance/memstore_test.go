package attendance

import (
	"context"
	"testing"
	"time"
)

func TestMemStoreKeepsLatestCheckIn(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore(nil)
	if err := st.CreateClass(ctx, Class{ID: "c1", Name: "Chem", CreatedBy: "t"}); err != nil {
		t.Fatal(err)
	}
	late := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	early := late.Add(-time.Hour)
	for _, e := range []CheckInEvent{
		{ClassID: "c1", DateKey: "2025-03-03", AccountID: "u1", StudentID: "S1", Timestamp: late},
		{ClassID: "c1", DateKey: "2025-03-03", AccountID: "u2", StudentID: "S2", Timestamp: early},
	} {
		if err := st.AppendCheckIn(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	c, err := st.GetClass(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.LastCheckedIn == nil || !c.LastCheckedIn.Equal(late) {
		t.Fatalf("LastCheckedIn = %v, want %v", c.LastCheckedIn, late)
	}
	if c.CheckedInCount() != 2 {
		t.Fatalf("CheckedInCount = %d", c.CheckedInCount())
	}
}

package attendance

import (
	"context"
)

// Store is the persistence boundary used by the attendance flows.
// Implementations return ErrNotFound for missing classes and profiles and
// ErrAlreadyCheckedIn when an event for the same class, day and account exists.
type Store interface {
	GetProfile(ctx context.Context, accountID string) (Profile, error)
	// SyncProfile creates the profile on first sight and refreshes email and
	// display name afterwards, leaving student id and institution untouched.
	SyncProfile(ctx context.Context, who Identity) (Profile, error)
	UpdateProfile(ctx context.Context, accountID, name, studentID, institution string) (Profile, error)

	CreateClass(ctx context.Context, c Class) error
	GetClass(ctx context.Context, classID string) (Class, error)
	// DeleteClass removes the class with its events, members and roster.
	DeleteClass(ctx context.Context, classID string) error
	ListOwnedClasses(ctx context.Context, accountID string) ([]Class, error)
	// ListJoinedClasses returns classes the account checked into but does not own.
	ListJoinedClasses(ctx context.Context, accountID string) ([]Class, error)

	ListRoster(ctx context.Context, classID string) ([]RosterEntry, error)
	AddRosterEntry(ctx context.Context, e RosterEntry) (RosterEntry, error)

	// AppendCheckIn writes the event, adds the account to the checked-in set
	// and bumps the class's last check-in time as one unit.
	AppendCheckIn(ctx context.Context, e CheckInEvent) error
	DayEvents(ctx context.Context, classID, dateKey string) ([]CheckInEvent, error)
	Days(ctx context.Context, classID string) (Days, error)
}

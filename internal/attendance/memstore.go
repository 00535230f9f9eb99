package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier receives the id of a class whose events or roster changed.
type Notifier interface {
	Publish(classID string)
}

// MemStore is an in-process Store. It backs STORE_BACKEND=memory and tests.
type MemStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	classes  map[string]*memClass
	notify   Notifier
	now      func() time.Time
}

type memClass struct {
	class  Class
	days   Days
	roster []RosterEntry
}

func NewMemStore(n Notifier) *MemStore {
	return &MemStore{
		profiles: make(map[string]Profile),
		classes:  make(map[string]*memClass),
		notify:   n,
		now:      time.Now,
	}
}

func (m *MemStore) publish(classID string) {
	if m.notify != nil {
		m.notify.Publish(classID)
	}
}

func (m *MemStore) GetProfile(_ context.Context, accountID string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemStore) SyncProfile(_ context.Context, who Identity) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	p, ok := m.profiles[who.AccountID]
	if !ok {
		p = Profile{AccountID: who.AccountID, CreatedAt: now, Role: "user"}
	}
	p.Email = who.Email
	if who.DisplayName != "" {
		p.DisplayName = who.DisplayName
	}
	p.UpdatedAt = now
	m.profiles[who.AccountID] = p
	return p, nil
}

func (m *MemStore) UpdateProfile(_ context.Context, accountID, name, studentID, institution string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.DisplayName = name
	p.StudentID = studentID
	p.Institution = institution
	p.UpdatedAt = m.now().UTC()
	m.profiles[accountID] = p
	return p, nil
}

func (m *MemStore) CreateClass(_ context.Context, c Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if len(c.Members) == 0 {
		c.Members = []string{c.CreatedBy}
	}
	m.classes[c.ID] = &memClass{class: c, days: make(Days)}
	return nil
}

func (m *MemStore) GetClass(_ context.Context, classID string) (Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.classes[classID]
	if !ok {
		return Class{}, ErrNotFound
	}
	return copyClass(mc.class), nil
}

func copyClass(c Class) Class {
	c.Members = append([]string(nil), c.Members...)
	c.CheckedInMembers = append([]string(nil), c.CheckedInMembers...)
	if c.LastCheckedIn != nil {
		t := *c.LastCheckedIn
		c.LastCheckedIn = &t
	}
	return c
}

func (m *MemStore) DeleteClass(_ context.Context, classID string) error {
	m.mu.Lock()
	if _, ok := m.classes[classID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.classes, classID)
	m.mu.Unlock()
	m.publish(classID)
	return nil
}

func (m *MemStore) ListOwnedClasses(_ context.Context, accountID string) ([]Class, error) {
	return m.listClasses(func(c Class) bool { return c.CreatedBy == accountID }), nil
}

func (m *MemStore) ListJoinedClasses(_ context.Context, accountID string) ([]Class, error) {
	return m.listClasses(func(c Class) bool {
		return c.CreatedBy != accountID && contains(c.CheckedInMembers, accountID)
	}), nil
}

func (m *MemStore) listClasses(keep func(Class) bool) []Class {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Class
	for _, mc := range m.classes {
		if keep(mc.class) {
			out = append(out, copyClass(mc.class))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemStore) ListRoster(_ context.Context, classID string) ([]RosterEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.classes[classID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]RosterEntry(nil), mc.roster...), nil
}

func (m *MemStore) AddRosterEntry(_ context.Context, e RosterEntry) (RosterEntry, error) {
	m.mu.Lock()
	mc, ok := m.classes[e.ClassID]
	if !ok {
		m.mu.Unlock()
		return RosterEntry{}, ErrNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now().UTC()
	}
	mc.roster = append(mc.roster, e)
	m.mu.Unlock()
	m.publish(e.ClassID)
	return e, nil
}

func (m *MemStore) AppendCheckIn(_ context.Context, e CheckInEvent) error {
	if err := e.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	mc, ok := m.classes[e.ClassID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !mc.days.Add(e) {
		m.mu.Unlock()
		return ErrAlreadyCheckedIn
	}
	if !contains(mc.class.CheckedInMembers, e.AccountID) {
		mc.class.CheckedInMembers = append(mc.class.CheckedInMembers, e.AccountID)
	}
	if last := mc.class.LastCheckedIn; last == nil || e.Timestamp.After(*last) {
		ts := e.Timestamp
		mc.class.LastCheckedIn = &ts
	}
	m.mu.Unlock()
	m.publish(e.ClassID)
	return nil
}

func (m *MemStore) DayEvents(_ context.Context, classID, dateKey string) ([]CheckInEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.classes[classID]
	if !ok {
		return nil, ErrNotFound
	}
	return mc.days.Events(dateKey), nil
}

func (m *MemStore) Days(_ context.Context, classID string) (Days, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.classes[classID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(Days, len(mc.days))
	for k, day := range mc.days {
		cp := make(map[string]CheckInEvent, len(day))
		for id, e := range day {
			cp[id] = e
		}
		out[k] = cp
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"classattend/internal/apperr"
	"classattend/internal/device"
	"classattend/internal/metrics"
)

// DeviceGate is the part of the device registry the admission flow needs.
type DeviceGate interface {
	Check(ctx context.Context, deviceID, email string) (device.Decision, error)
	Bind(ctx context.Context, deviceID, email string, windowStart *time.Time) (time.Time, error)
}

// Service coordinates check-in admission and the class and profile flows around it.
type Service struct {
	store   Store
	devices DeviceGate
	loc     *time.Location
	log     *zap.Logger
	now     func() time.Time
}

// NewService wires the admission flow. loc decides which calendar day a check-in belongs to.
func NewService(store Store, devices DeviceGate, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, devices: devices, loc: loc, log: log, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Store() Store { return s.store }

// CheckIn admits who into the class encoded in payload for today. deviceID may
// be empty when the device could not be identified.
func (s *Service) CheckIn(ctx context.Context, payload string, who Identity, deviceID string) (CheckInEvent, error) {
	evt, err := s.checkIn(ctx, payload, who, deviceID)
	outcome := "ok"
	if err != nil {
		outcome = apperr.From(err).Code
	}
	metrics.CheckIns.WithLabelValues(outcome).Inc()
	if err != nil {
		if apperr.IsInternal(err) {
			s.log.Error("check-in failed", zap.String("account", who.AccountID), zap.Error(err))
		} else {
			s.log.Info("check-in rejected", zap.String("account", who.AccountID), zap.String("reason", outcome))
		}
		return CheckInEvent{}, err
	}
	s.log.Info("check-in recorded",
		zap.String("class", evt.ClassID), zap.String("account", evt.AccountID), zap.String("date", evt.DateKey))
	return evt, nil
}

func (s *Service) checkIn(ctx context.Context, payload string, who Identity, deviceID string) (CheckInEvent, error) {
	if who.AccountID == "" {
		return CheckInEvent{}, apperr.Unauthorized
	}
	if s.devices != nil {
		d, err := s.devices.Check(ctx, deviceID, who.Email)
		if err != nil {
			return CheckInEvent{}, fmt.Errorf("device check: %w", err)
		}
		if !d.Allowed {
			return CheckInEvent{}, apperr.DeviceBound.WithMessage("Device check failed: " + d.Reason)
		}
	}

	classID, ok := ParseClassID(payload)
	if !ok {
		return CheckInEvent{}, apperr.InvalidCode
	}

	profile, err := s.store.GetProfile(ctx, who.AccountID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return CheckInEvent{}, fmt.Errorf("load profile: %w", err)
	}
	studentID := profile.StudentID
	if strings.TrimSpace(studentID) == "" {
		return CheckInEvent{}, apperr.NoStudentID
	}

	if _, err := s.store.GetClass(ctx, classID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return CheckInEvent{}, apperr.ClassNotFound
		}
		return CheckInEvent{}, fmt.Errorf("load class: %w", err)
	}

	roster, err := s.store.ListRoster(ctx, classID)
	if err != nil {
		return CheckInEvent{}, fmt.Errorf("load roster: %w", err)
	}
	entry, ok := MatchRoster(roster, studentID)
	if !ok {
		return CheckInEvent{}, apperr.NotEnrolled.WithMessage("Student " + studentID + " is not on the class roster")
	}

	now := s.now()
	dateKey := DateKey(now, s.loc)
	today, err := s.store.DayEvents(ctx, classID, dateKey)
	if err != nil {
		return CheckInEvent{}, fmt.Errorf("load day: %w", err)
	}
	for _, e := range today {
		if e.AccountID == who.AccountID {
			return CheckInEvent{}, apperr.AlreadyCheckedIn
		}
	}

	evt := CheckInEvent{
		ClassID:     classID,
		DateKey:     dateKey,
		AccountID:   who.AccountID,
		StudentID:   studentID,
		DisplayName: firstNonEmpty(entry.Name, profile.DisplayName, who.DisplayName, who.Email),
		Email:       who.Email,
		Status:      firstNonEmpty(entry.Status, "active"),
		Timestamp:   now.UTC(),
	}
	if err := s.store.AppendCheckIn(ctx, evt); err != nil {
		if errors.Is(err, ErrAlreadyCheckedIn) {
			return CheckInEvent{}, apperr.AlreadyCheckedIn
		}
		return CheckInEvent{}, fmt.Errorf("append check-in: %w", err)
	}

	s.bindDevice(ctx, deviceID, who.Email)
	return evt, nil
}

// bindDevice ties the device to the account for one TTL from now. Failures are
// logged and never undo the check-in.
func (s *Service) bindDevice(ctx context.Context, deviceID, email string) {
	if s.devices == nil || deviceID == "" {
		return
	}
	if _, err := s.devices.Bind(ctx, deviceID, email, nil); err != nil {
		s.log.Warn("device bind failed", zap.String("email", email), zap.Error(err))
	}
}

// CheckDevice is the pre-login device check.
func (s *Service) CheckDevice(ctx context.Context, deviceID, email string) (device.Decision, error) {
	if s.devices == nil {
		return device.Decision{Allowed: true, Reason: device.ReasonNoDevice}, nil
	}
	d, err := s.devices.Check(ctx, deviceID, email)
	if err != nil {
		return device.Decision{}, fmt.Errorf("device check: %w", err)
	}
	return d, nil
}

// CreateClass creates a class owned by who.
func (s *Service) CreateClass(ctx context.Context, name string, who Identity) (Class, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Class{}, apperr.InvalidInput.WithMessage("class name is required")
	}
	if who.AccountID == "" {
		return Class{}, apperr.Unauthorized
	}
	c := Class{
		ID:         newClassID(),
		Name:       name,
		CreatedBy:  who.AccountID,
		OwnerEmail: who.Email,
		CreatedAt:  s.now().UTC(),
		Members:    []string{who.AccountID},
	}
	if err := s.store.CreateClass(ctx, c); err != nil {
		return Class{}, fmt.Errorf("create class: %w", err)
	}
	return c, nil
}

// LoadClass returns the class or CLASS_NOT_FOUND.
func (s *Service) LoadClass(ctx context.Context, classID string) (Class, error) {
	c, err := s.store.GetClass(ctx, classID)
	if errors.Is(err, ErrNotFound) {
		return Class{}, apperr.ClassNotFound
	}
	if err != nil {
		return Class{}, fmt.Errorf("load class: %w", err)
	}
	return c, nil
}

// OwnedClass loads the class and requires who to own it.
func (s *Service) OwnedClass(ctx context.Context, classID string, who Identity) (Class, error) {
	c, err := s.LoadClass(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if !c.OwnedBy(who) {
		return Class{}, apperr.NotOwner
	}
	return c, nil
}

// DeleteClass removes a class the caller owns.
func (s *Service) DeleteClass(ctx context.Context, classID string, who Identity) error {
	if _, err := s.OwnedClass(ctx, classID, who); err != nil {
		return err
	}
	if err := s.store.DeleteClass(ctx, classID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.ClassNotFound
		}
		return fmt.Errorf("delete class: %w", err)
	}
	s.log.Info("class deleted", zap.String("class", classID), zap.String("account", who.AccountID))
	return nil
}

// ListClasses returns owned classes, or joined ones when joined is set.
func (s *Service) ListClasses(ctx context.Context, who Identity, joined bool) ([]Class, error) {
	var (
		out []Class
		err error
	)
	if joined {
		out, err = s.store.ListJoinedClasses(ctx, who.AccountID)
	} else {
		out, err = s.store.ListOwnedClasses(ctx, who.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return out, nil
}

// ClassDetail returns the per-day check-in lists visible to who.
func (s *Service) ClassDetail(ctx context.Context, classID string, who Identity) (Class, []DayList, error) {
	c, err := s.LoadClass(ctx, classID)
	if err != nil {
		return Class{}, nil, err
	}
	days, err := s.store.Days(ctx, classID)
	if err != nil {
		return Class{}, nil, fmt.Errorf("load days: %w", err)
	}
	return c, DailyLists(days, who, c.OwnedBy(who)), nil
}

// Profile syncs the identity into the account store and returns the profile.
func (s *Service) Profile(ctx context.Context, who Identity) (Profile, error) {
	if who.AccountID == "" {
		return Profile{}, apperr.Unauthorized
	}
	p, err := s.store.SyncProfile(ctx, who)
	if err != nil {
		return Profile{}, fmt.Errorf("sync profile: %w", err)
	}
	return p, nil
}

// UpdateProfile sets name, student id and institution. Student id is required.
func (s *Service) UpdateProfile(ctx context.Context, who Identity, name, studentID, institution string) (Profile, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return Profile{}, apperr.InvalidInput.WithMessage("student id is required")
	}
	if _, err := s.Profile(ctx, who); err != nil {
		return Profile{}, err
	}
	p, err := s.store.UpdateProfile(ctx, who.AccountID, strings.TrimSpace(name), studentID, strings.TrimSpace(institution))
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

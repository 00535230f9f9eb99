package summary

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/feed"
	"classattend/internal/metrics"
)

// Query selects the view to compute.
type Query struct {
	ClassID string
	Viewer  attendance.Identity
	Mode    Mode
	Date    string
}

// Service loads class snapshots and aggregates them.
type Service struct {
	classes   *attendance.Service
	hub       *feed.Hub
	threshold time.Duration
	log       *zap.Logger
}

func NewService(classes *attendance.Service, hub *feed.Hub, threshold time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{classes: classes, hub: hub, threshold: threshold, log: log}
}

// Compute loads the current snapshot and aggregates it.
func (s *Service) Compute(ctx context.Context, q Query) (Result, error) {
	if q.Mode == ModeDaily {
		if _, err := time.Parse(attendance.DateKeyLayout, q.Date); err != nil {
			return Result{}, apperr.InvalidInput.WithMessage("date must be YYYY-MM-DD")
		}
	}
	class, err := s.classes.LoadClass(ctx, q.ClassID)
	if err != nil {
		return Result{}, err
	}
	store := s.classes.Store()
	roster, err := store.ListRoster(ctx, q.ClassID)
	if err != nil {
		return Result{}, fmt.Errorf("load roster: %w", err)
	}
	days, err := store.Days(ctx, q.ClassID)
	if err != nil {
		return Result{}, fmt.Errorf("load days: %w", err)
	}
	return Aggregate(Input{
		Roster:    roster,
		Days:      days,
		Viewer:    q.Viewer,
		Owner:     class.OwnedBy(q.Viewer),
		Mode:      q.Mode,
		Date:      q.Date,
		Threshold: s.threshold,
	}), nil
}

// Subscribe returns an idle handle on the class's change stream.
func (s *Service) Subscribe(classID string) *feed.Subscription {
	return s.hub.Subscribe(classID)
}

// Watch recomputes q on every change to the class and hands each result to
// emit. It returns when ctx ends, the subscription is cancelled, or emit or
// Compute fail.
func (s *Service) Watch(ctx context.Context, q Query, sub *feed.Subscription, emit func(Result) error) error {
	sub.Start()
	defer sub.Cancel()
	metrics.LiveSubscribers.Inc()
	defer metrics.LiveSubscribers.Dec()
	s.log.Debug("live summary opened",
		zap.String("class", q.ClassID), zap.Int("subscribers", s.hub.Subscribers(q.ClassID)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C():
			if !ok {
				return nil
			}
			res, err := s.Compute(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := emit(res); err != nil {
				return err
			}
		}
	}
}

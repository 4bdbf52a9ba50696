package service

import (
	"context"
	"fmt"
	"sort"

	"eventDesk/internal/cache"
	"eventDesk/internal/mapper"
	"eventDesk/internal/model"
	"eventDesk/internal/repo"
)

func (s *service) CreateEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}
	if err := s.requireRemote(); err != nil {
		return nil, err
	}

	fields, err := mapper.Encode(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if in.Active == nil {
		fields["active"] = true
	}

	ev, err := s.repo.CreateEvent(ctx, mapper.Events().Normalize(fields))
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("event_id", ev.ID).Str("name", ev.Name).Msg("event created")

	s.mirror(cache.Events, s.cache.MutateEvents(ctx, func(events []model.Event) []model.Event {
		return upsertEvent(events, *ev)
	}))
	s.notify(ctx, cache.Events)
	return ev, nil
}

func (s *service) UpdateEvent(ctx context.Context, id string, patch EventPatch) (*model.Event, error) {
	fields, err := validatePatch(ctx, s, mapper.Events(), patch)
	if err != nil {
		return nil, err
	}
	if err := s.requireRemote(); err != nil {
		return nil, err
	}

	ev, err := s.repo.UpdateEvent(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("event_id", ev.ID).Msg("event updated")

	s.mirror(cache.Events, s.cache.MutateEvents(ctx, func(events []model.Event) []model.Event {
		return upsertEvent(events, *ev)
	}))
	s.mirror(cache.Registrations, s.cache.MutateRegistrations(ctx, renameEvent(ev.ID, ev.Name)))
	s.notify(ctx, cache.Events)
	return ev, nil
}

func (s *service) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: event id is required", ErrValidationFailed)
	}
	if err := s.requireRemote(); err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("event_id", id).Msg("event deleted")

	s.mirror(cache.Events, s.cache.MutateEvents(ctx, func(events []model.Event) []model.Event {
		out := events[:0]
		for _, e := range events {
			if e.ID != id {
				out = append(out, e)
			}
		}
		return out
	}))
	s.mirror(cache.Registrations, s.cache.MutateRegistrations(ctx, renameEvent(id, model.DeletedEventName)))
	s.notify(ctx, cache.Events)
	return nil
}

func (s *service) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if s.repo.Available() {
		ev, err := s.repo.GetEvent(ctx, id)
		if err == nil || isNotFound(err) {
			return ev, err
		}
		s.log.Warn().Err(err).Str("event_id", id).Msg("live event lookup failed, using cache")
	}
	for _, e := range s.cache.Events(ctx) {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("event %s: %w", id, repo.ErrNotFound)
}

func (s *service) ListEvents(ctx context.Context, f EventFilter) (EventList, error) {
	list := EventList{FromCache: true}
	if s.repo.Available() {
		events, err := s.repo.ListEvents(ctx)
		if err == nil {
			s.mirror(cache.Events, s.cache.PutEvents(ctx, events))
			list = EventList{Items: events}
		} else {
			s.log.Warn().Err(err).Msg("live event list failed, serving cache")
		}
	}
	if list.FromCache {
		list.Items = s.cache.Events(ctx)
	}

	if !f.IncludeInactive {
		active := make([]model.Event, 0, len(list.Items))
		for _, e := range list.Items {
			if e.Active {
				active = append(active, e)
			}
		}
		list.Items = active
	}
	return list, nil
}

// upsertEvent keeps the cached list in date order.
func upsertEvent(events []model.Event, ev model.Event) []model.Event {
	replaced := false
	for i := range events {
		if events[i].ID == ev.ID {
			events[i] = ev
			replaced = true
			break
		}
	}
	if !replaced {
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date < events[j].Date })
	return events
}

func renameEvent(eventID, name string) func([]model.Registration) []model.Registration {
	return func(regs []model.Registration) []model.Registration {
		for i := range regs {
			if regs[i].EventID == eventID {
				regs[i].EventName = name
			}
		}
		return regs
	}
}

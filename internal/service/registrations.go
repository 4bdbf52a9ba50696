package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"eventDesk/internal/cache"
	"eventDesk/internal/mapper"
	"eventDesk/internal/model"
	"eventDesk/internal/repo"
)

func (s *service) CreateRegistration(ctx context.Context, in RegistrationInput) (*model.Registration, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}
	if !hasContact(in.Email, in.Phone, in.ClassName, in.SeatNumber) {
		return nil, fmt.Errorf("%w: an email, a phone or a class and seat number is required", ErrValidationFailed)
	}
	if err := s.requireRemote(); err != nil {
		return nil, err
	}

	ev, err := s.repo.GetEvent(ctx, in.EventID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: event %s does not exist", ErrValidationFailed, in.EventID)
	}
	if err != nil {
		return nil, err
	}
	if err := s.checkOpen(ctx, ev); err != nil {
		return nil, err
	}

	fields, err := mapper.Encode(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	fields["registrationDate"] = ev.Date
	fields["status"] = string(model.StatusPending)
	fields["submittedAt"] = s.now().UTC().Format(time.RFC3339Nano)

	reg, err := s.repo.CreateRegistration(ctx, mapper.Registrations().Normalize(fields))
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("registration_id", reg.ID).
		Str("event_id", reg.EventID).
		Msg("registration created")

	s.mirror(cache.Registrations, s.cache.MutateRegistrations(ctx, func(regs []model.Registration) []model.Registration {
		return upsertRegistration(regs, *reg)
	}))
	s.notify(ctx, cache.Registrations)
	return reg, nil
}

func hasContact(email, phone, className *string, seat *int) bool {
	filled := func(p *string) bool { return p != nil && strings.TrimSpace(*p) != "" }
	if filled(email) || filled(phone) {
		return true
	}
	return filled(className) && seat != nil
}

// patchedContact overlays the contact columns of a normalized patch on the
// stored registration. A nil value in fields clears the column.
func patchedContact(current *model.Registration, fields mapper.Record) (email, phone *string) {
	email, phone = current.Email, current.Phone
	pick := func(key string, dst **string) {
		v, ok := fields[key]
		if !ok {
			return
		}
		if str, isStr := v.(string); isStr {
			*dst = &str
			return
		}
		*dst = nil
	}
	pick("email", &email)
	pick("phone", &phone)
	return email, phone
}

// checkOpen rejects registrations for inactive, closed or full events.
func (s *service) checkOpen(ctx context.Context, ev *model.Event) error {
	if !ev.Active {
		return fmt.Errorf("%w: event %q is not accepting registrations", ErrValidationFailed, ev.Name)
	}
	if ev.DeadlinePassed(s.now()) {
		return fmt.Errorf("%w: %w: deadline %s has passed", ErrValidationFailed, ErrRegistrationClosed, *ev.Deadline)
	}
	if ev.Capacity == nil {
		return nil
	}
	taken, err := s.repo.ListRegistrationsByEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	if len(taken) >= *ev.Capacity {
		return fmt.Errorf("event %q: %w", ev.Name, ErrEventFull)
	}
	return nil
}

func (s *service) UpdateRegistration(ctx context.Context, id string, patch RegistrationPatch) (*model.Registration, error) {
	fields, err := validatePatch(ctx, s, mapper.Registrations(), patch)
	if err != nil {
		return nil, err
	}
	if err := s.requireRemote(); err != nil {
		return nil, err
	}

	_, touchesEmail := fields["email"]
	_, touchesPhone := fields["phone"]

	var previous *model.Registration
	if patch.Status != nil || touchesEmail || touchesPhone {
		previous, err = s.repo.GetRegistration(ctx, id)
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %w", repo.ErrRemoteWriteFailed, err)
		}
		if err != nil {
			return nil, err
		}
	}
	if patch.Status != nil && !previous.Status.CanTransitionTo(*patch.Status) {
		return nil, fmt.Errorf("%w: %w: %s to %s", ErrValidationFailed, model.ErrInvalidTransition, previous.Status, *patch.Status)
	}
	if touchesEmail || touchesPhone {
		email, phone := patchedContact(previous, fields)
		if !hasContact(email, phone, previous.ClassName, previous.SeatNumber) {
			return nil, fmt.Errorf("%w: the update would leave no email, phone or class and seat number", ErrValidationFailed)
		}
	}

	reg, err := s.repo.UpdateRegistration(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("registration_id", reg.ID).Str("status", string(reg.Status)).Msg("registration updated")

	s.mirror(cache.Registrations, s.cache.MutateRegistrations(ctx, func(regs []model.Registration) []model.Registration {
		return upsertRegistration(regs, *reg)
	}))
	s.notify(ctx, cache.Registrations)

	if previous != nil && previous.Status != reg.Status {
		s.sendStatusMail(ctx, reg)
	}
	return reg, nil
}

func (s *service) sendStatusMail(ctx context.Context, reg *model.Registration) {
	if s.mailer == nil || reg.Email == nil || *reg.Email == "" {
		return
	}
	if err := s.mailer.SendStatusUpdate(ctx, *reg.Email, reg.Name, reg.EventName, reg.Status); err != nil {
		s.log.Warn().Err(err).Str("registration_id", reg.ID).Msg("failed to send status e-mail")
	}
}

func (s *service) DeleteRegistration(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: registration id is required", ErrValidationFailed)
	}
	if err := s.requireRemote(); err != nil {
		return err
	}
	if err := s.repo.DeleteRegistration(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("registration_id", id).Msg("registration deleted")

	s.mirror(cache.Registrations, s.cache.MutateRegistrations(ctx, dropRegistrations(map[string]bool{id: true})))
	s.notify(ctx, cache.Registrations)
	return nil
}

// ClearRegistrations deletes every registration. Rows deleted before a
// failure stay deleted and are removed from the cache too.
func (s *service) ClearRegistrations(ctx context.Context) (int, error) {
	if err := s.requireRemote(); err != nil {
		return 0, err
	}
	regs, err := s.repo.ListRegistrations(ctx)
	if err != nil {
		return 0, err
	}

	deleted := make(map[string]bool, len(regs))
	var failure error
	for _, r := range regs {
		if err := s.repo.DeleteRegistration(ctx, r.ID); err != nil && !isNotFound(err) {
			failure = err
			break
		}
		deleted[r.ID] = true
	}

	if len(deleted) > 0 {
		s.mirror(cache.Registrations, s.cache.MutateRegistrations(ctx, dropRegistrations(deleted)))
		s.notify(ctx, cache.Registrations)
	}
	s.log.Warn().Int("deleted", len(deleted)).Msg("registrations cleared")
	return len(deleted), failure
}

func (s *service) ListRegistrations(ctx context.Context, f RegistrationFilter) (RegistrationList, error) {
	if err := s.validate(ctx, f); err != nil {
		return RegistrationList{}, err
	}
	list := s.loadRegistrations(ctx)
	list.Items = s.filter(list.Items, f)
	return list, nil
}

func (s *service) Stats(ctx context.Context) (Stats, error) {
	list := s.loadRegistrations(ctx)
	now := s.now()
	st := Stats{Total: len(list.Items), FromCache: list.FromCache}
	for _, r := range list.Items {
		if inPeriod(r.SubmittedAt, PeriodToday, now) {
			st.Today++
		}
		if inPeriod(r.SubmittedAt, PeriodWeek, now) {
			st.Week++
		}
		if r.Status == model.StatusPending {
			st.Pending++
		}
	}
	return st, nil
}

func (s *service) loadRegistrations(ctx context.Context) RegistrationList {
	if s.repo.Available() {
		regs, err := s.repo.ListRegistrations(ctx)
		if err == nil {
			s.mirror(cache.Registrations, s.cache.PutRegistrations(ctx, regs))
			return RegistrationList{Items: regs}
		}
		if !errors.Is(err, repo.ErrRemoteUnavailable) {
			s.log.Warn().Err(err).Msg("live registration list failed, serving cache")
		}
	}
	return RegistrationList{Items: s.cache.Registrations(ctx), FromCache: true}
}

func (s *service) filter(regs []model.Registration, f RegistrationFilter) []model.Registration {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	now := s.now()
	out := make([]model.Registration, 0, len(regs))
	for _, r := range regs {
		if f.EventID != "" && r.EventID != f.EventID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Period != PeriodAll && !inPeriod(r.SubmittedAt, f.Period, now) {
			continue
		}
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(r model.Registration, needle string) bool {
	fields := []string{r.Name}
	if r.Email != nil {
		fields = append(fields, *r.Email)
	}
	if r.Phone != nil {
		fields = append(fields, *r.Phone)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// inPeriod compares calendar days in now's location for "today" and
// rolling windows for "week" and "month".
func inPeriod(t time.Time, p Period, now time.Time) bool {
	switch p {
	case PeriodToday:
		ly, lm, ld := t.In(now.Location()).Date()
		ny, nm, nd := now.Date()
		return ly == ny && lm == nm && ld == nd
	case PeriodWeek:
		return !t.Before(now.AddDate(0, 0, -7))
	case PeriodMonth:
		return !t.Before(now.AddDate(0, -1, 0))
	}
	return true
}

// upsertRegistration keeps the cached list newest first.
func upsertRegistration(regs []model.Registration, reg model.Registration) []model.Registration {
	replaced := false
	for i := range regs {
		if regs[i].ID == reg.ID {
			regs[i] = reg
			replaced = true
			break
		}
	}
	if !replaced {
		regs = append(regs, reg)
	}
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].SubmittedAt.After(regs[j].SubmittedAt) })
	return regs
}

func dropRegistrations(ids map[string]bool) func([]model.Registration) []model.Registration {
	return func(regs []model.Registration) []model.Registration {
		out := regs[:0]
		for _, r := range regs {
			if !ids[r.ID] {
				out = append(out, r)
			}
		}
		return out
	}
}

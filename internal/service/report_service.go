package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"propertyops/internal/model"
	"propertyops/internal/notify"
	"propertyops/internal/repository"
)

// ErrOwnerNotFound is returned when operating on an unknown owner id.
var ErrOwnerNotFound = errors.New("service: owner not found")

var ErrInvalidCadence = errors.New("service: report cadence must be daily or weekly")

// ReportService sends periodic portfolio summaries to owners. It reuses the
// recurrence Schedule primitive to compute each owner's next send time from
// their cadence and preferred hour; the generation engine and this dispatcher
// share the same date advancement rules.
type ReportService struct {
	owners     *repository.OwnerRepository
	properties *repository.PropertyRepository
	tasks      *repository.TaskRepository
	notifier   notify.Notifier
	log        zerolog.Logger
}

func NewReportService(
	owners *repository.OwnerRepository,
	properties *repository.PropertyRepository,
	tasks *repository.TaskRepository,
	notifier notify.Notifier,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		owners:     owners,
		properties: properties,
		tasks:      tasks,
		notifier:   notifier,
		log:        log,
	}
}

// Subscribe enables periodic reports for an owner. Day is the preferred
// weekday for the weekly cadence (0 = Sunday); hour is the preferred local
// send hour for both cadences.
func (s *ReportService) Subscribe(ctx context.Context, ownerID uint, cadence string, day *int, hour int, now time.Time) (*model.Owner, error) {
	if cadence != model.ReportCadenceDaily && cadence != model.ReportCadenceWeekly {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCadence, cadence)
	}
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("service: report hour %d out of range", hour)
	}
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	owner.ReportCadence = cadence
	owner.ReportDay = day
	owner.ReportHour = hour
	next := s.nextReportAt(*owner, now)
	owner.NextReportAt = &next
	if err := s.owners.Save(ctx, owner); err != nil {
		return nil, err
	}
	return owner, nil
}

// DispatchDueReports sends a summary to every owner whose next report time
// has passed and advances their schedule. Per-owner failures are logged and
// skipped; the owner stays due and is retried on the next dispatch.
func (s *ReportService) DispatchDueReports(ctx context.Context, now time.Time) (int, error) {
	owners, err := s.owners.ListReportsDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due reports: %w", err)
	}

	sent := 0
	for i := range owners {
		owner := owners[i]
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}

		body, err := s.buildSummary(ctx, owner, now)
		if err != nil {
			s.log.Error().Err(err).Uint("owner_id", owner.ID).Msg("build report")
			continue
		}
		subject := fmt.Sprintf("Portfolio report for %s", now.Format("2006-01-02"))
		if err := s.notifier.Send(ctx, owner.Email, subject, body); err != nil {
			s.log.Error().Err(err).Uint("owner_id", owner.ID).Msg("send report")
			continue
		}
		next := s.nextReportAt(owner, now)
		if err := s.owners.SetNextReport(ctx, owner.ID, next); err != nil {
			s.log.Error().Err(err).Uint("owner_id", owner.ID).Msg("advance report schedule")
			continue
		}
		sent++
	}
	return sent, nil
}

// nextReportAt lands strictly in the future at the owner's preferred hour.
func (s *ReportService) nextReportAt(owner model.Owner, now time.Time) time.Time {
	schedule := model.Schedule{Frequency: model.FrequencyDaily, Interval: 1}
	if owner.ReportCadence == model.ReportCadenceWeekly {
		schedule.Frequency = model.FrequencyWeekly
		if owner.ReportDay != nil {
			day := time.Weekday(*owner.ReportDay)
			schedule.DayOfWeek = &day
		}
	}
	day := schedule.NextOccurrence(now)
	return time.Date(day.Year(), day.Month(), day.Day(), owner.ReportHour, 0, 0, 0, now.Location())
}

func (s *ReportService) buildSummary(ctx context.Context, owner model.Owner, now time.Time) (string, error) {
	properties, err := s.properties.ListByOwner(ctx, owner.ID)
	if err != nil {
		return "", fmt.Errorf("list properties: %w", err)
	}
	propertyIDs := make([]uint, 0, len(properties))
	propertyNames := make(map[uint]string, len(properties))
	for _, property := range properties {
		propertyIDs = append(propertyIDs, property.ID)
		propertyNames[property.ID] = property.Name
	}

	tasks, err := s.tasks.ListOpenByProperties(ctx, propertyIDs)
	if err != nil {
		return "", fmt.Errorf("list open tasks: %w", err)
	}

	today := model.DayStart(now)
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Portfolio report for %s\n", owner.Name))
	builder.WriteString(fmt.Sprintf("Date: %s\n", now.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Properties: %d, open tasks: %d\n\n", len(properties), len(tasks)))

	if len(tasks) == 0 {
		builder.WriteString("No open tasks.\n")
		return strings.TrimSpace(builder.String()), nil
	}

	overdue := 0
	for _, task := range tasks {
		marker := "due"
		if task.DueDate.Before(today) {
			marker = "OVERDUE"
			overdue++
		}
		builder.WriteString(fmt.Sprintf("- [%s %s] %s at %s (%s)\n",
			marker, task.DueDate.Format("2006-01-02"), task.Title,
			propertyNames[task.PropertyID], task.TaskType))
	}
	if overdue > 0 {
		builder.WriteString(fmt.Sprintf("\n%d task(s) overdue.\n", overdue))
	}
	return strings.TrimSpace(builder.String()), nil
}

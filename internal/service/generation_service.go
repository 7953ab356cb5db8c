package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"propertyops/internal/model"
	"propertyops/internal/repository"
)

// TaskSink materializes a due occurrence into concrete task records, one per
// property. Implementations receive the engine's transaction handle so the
// created instances commit or roll back together with the rule's schedule
// advancement: an instance is never orphaned from an unadvanced rule, and a
// rule is never advanced without its instances.
type TaskSink interface {
	CreateInstances(ctx context.Context, tx *gorm.DB, rule model.RecurrenceRule, dueDate time.Time, properties []model.Property) (int, error)
}

// RuleError describes one rule's failure within a run.
type RuleError struct {
	RuleID  uint   `json:"ruleId"`
	Message string `json:"message"`
}

// RunResult aggregates one engine invocation. Skipped counts rules another
// overlapping invocation advanced first; they are not errors.
type RunResult struct {
	RunID          string
	DueCount       int
	GeneratedCount int
	Skipped        int
	Errors         []RuleError
}

var errScheduleClaimed = errors.New("service: schedule already advanced by a concurrent run")

// GenerationService is the scheduler driver: it scans rules due at or before
// now, creates task instances through the sink and advances each rule's
// schedule exactly one occurrence per invocation. Overdue backlogs drain one
// occurrence per run rather than bursting every missed date at once.
type GenerationService struct {
	db          *gorm.DB
	rules       *repository.RuleRepository
	properties  *repository.PropertyRepository
	runs        *repository.RunRepository
	sink        TaskSink
	ruleTimeout time.Duration
	log         zerolog.Logger
}

func NewGenerationService(
	db *gorm.DB,
	rules *repository.RuleRepository,
	properties *repository.PropertyRepository,
	runs *repository.RunRepository,
	sink TaskSink,
	ruleTimeout time.Duration,
	log zerolog.Logger,
) *GenerationService {
	if ruleTimeout <= 0 {
		ruleTimeout = 30 * time.Second
	}
	return &GenerationService{
		db:          db,
		rules:       rules,
		properties:  properties,
		runs:        runs,
		sink:        sink,
		ruleTimeout: ruleTimeout,
		log:         log,
	}
}

// RunDueGenerations processes every rule due at or before now. One rule's
// failure never aborts the others; per-rule errors come back in the result.
// The returned error is reserved for engine-level faults (store unreachable,
// run cancelled), which the trigger should treat as a failed run.
func (s *GenerationService) RunDueGenerations(ctx context.Context, now time.Time) (RunResult, error) {
	started := time.Now()
	result := RunResult{RunID: uuid.NewString()}

	due, err := s.rules.ListDue(ctx, model.DayStart(now))
	if err != nil {
		return result, fmt.Errorf("list due rules: %w", err)
	}
	result.DueCount = len(due)

	for i := range due {
		rule := due[i]
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		created, err := s.generateForRule(ctx, now, rule)
		switch {
		case errors.Is(err, errScheduleClaimed):
			result.Skipped++
		case err != nil:
			s.log.Error().Err(err).Uint("rule_id", rule.ID).Str("title", rule.Title).
				Msg("rule generation failed, will retry next run")
			result.Errors = append(result.Errors, RuleError{RuleID: rule.ID, Message: err.Error()})
		default:
			result.GeneratedCount += created
		}
	}

	s.recordRun(ctx, started, result)
	s.log.Info().
		Str("run_id", result.RunID).
		Int("due", result.DueCount).
		Int("generated", result.GeneratedCount).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Errors)).
		Msg("generation run complete")
	return result, nil
}

// generateForRule handles one due rule: resolve its target properties,
// create instances dated at the rule's current NextRunDate (not now, so a
// late engine keeps the intended schedule) and advance or deactivate. The
// per-rule timeout keeps a stuck sink from starving the rest of the run.
func (s *GenerationService) generateForRule(ctx context.Context, now time.Time, rule model.RecurrenceRule) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ruleTimeout)
	defer cancel()

	properties, err := s.resolveTarget(ctx, rule)
	if err != nil {
		return 0, err
	}

	due := rule.NextRunDate
	next := rule.Schedule().NextOccurrence(due)
	var advanceTo *time.Time
	if rule.EndDate == nil || !next.After(*rule.EndDate) {
		advanceTo = &next
	}

	created := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.rules.AdvanceSchedule(ctx, tx, rule.ID, due, advanceTo, len(properties), now)
		if err != nil {
			return err
		}
		if !claimed {
			return errScheduleClaimed
		}
		if len(properties) == 0 {
			// Owner without properties: the occurrence is vacuously done.
			return nil
		}
		created, err = s.sink.CreateInstances(ctx, tx, rule, due, properties)
		return err
	})
	if err != nil {
		return 0, err
	}
	if advanceTo == nil {
		s.log.Info().Uint("rule_id", rule.ID).Time("end_date", *rule.EndDate).
			Msg("rule reached its end date, deactivated")
	}
	return created, nil
}

func (s *GenerationService) resolveTarget(ctx context.Context, rule model.RecurrenceRule) ([]model.Property, error) {
	switch {
	case rule.PropertyID != nil:
		property, err := s.properties.FindByID(ctx, *rule.PropertyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("property %d not found", *rule.PropertyID)
			}
			return nil, fmt.Errorf("load property %d: %w", *rule.PropertyID, err)
		}
		return []model.Property{*property}, nil
	case rule.OwnerID != nil:
		properties, err := s.properties.ListByOwner(ctx, *rule.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("list properties of owner %d: %w", *rule.OwnerID, err)
		}
		if len(properties) == 0 {
			s.log.Warn().Uint("rule_id", rule.ID).Uint("owner_id", *rule.OwnerID).
				Msg("owner has no properties, advancing schedule without instances")
		}
		return properties, nil
	default:
		return nil, model.ErrRuleTarget
	}
}

// recordRun persists run history. Failures here are logged, never surfaced:
// observability must not fail a run that already did its work. Runs that had
// nothing due and nothing to report are not recorded.
func (s *GenerationService) recordRun(ctx context.Context, started time.Time, result RunResult) {
	if result.DueCount == 0 {
		return
	}
	ruleErrors := result.Errors
	if ruleErrors == nil {
		ruleErrors = []RuleError{}
	}
	payload, err := json.Marshal(ruleErrors)
	if err != nil {
		s.log.Warn().Err(err).Msg("marshal run errors")
		payload = []byte("[]")
	}
	run := model.GenerationRun{
		ID:         result.RunID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		RulesDue:   result.DueCount,
		Generated:  result.GeneratedCount,
		Skipped:    result.Skipped,
		Failed:     len(result.Errors),
		Errors:     datatypes.JSON(payload),
	}
	if err := s.runs.Create(ctx, &run); err != nil {
		s.log.Warn().Err(err).Str("run_id", result.RunID).Msg("record generation run")
	}
}

package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"propertyops/internal/model"
	"propertyops/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "propertyops.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func newEngine(t *testing.T, db *gorm.DB, sink TaskSink) *GenerationService {
	t.Helper()
	if sink == nil {
		sink = NewTaskService(repository.NewTaskRepository(db), repository.NewContactRepository(db))
	}
	return NewGenerationService(
		db,
		repository.NewRuleRepository(db),
		repository.NewPropertyRepository(db),
		repository.NewRunRepository(db),
		sink,
		time.Minute,
		zerolog.Nop(),
	)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createOwner(t *testing.T, db *gorm.DB, name string) model.Owner {
	t.Helper()
	owner := model.Owner{Name: name, Email: name + "@example.com"}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return owner
}

func createProperty(t *testing.T, db *gorm.DB, ownerID uint, name string) model.Property {
	t.Helper()
	property := model.Property{OwnerID: ownerID, Name: name, Address: name + " street 1"}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("create property: %v", err)
	}
	return property
}

func createRule(t *testing.T, db *gorm.DB, rule model.RecurrenceRule) model.RecurrenceRule {
	t.Helper()
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule
}

func reloadRule(t *testing.T, db *gorm.DB, id uint) model.RecurrenceRule {
	t.Helper()
	var rule model.RecurrenceRule
	if err := db.First(&rule, id).Error; err != nil {
		t.Fatalf("reload rule %d: %v", id, err)
	}
	return rule
}

// failingSink delegates to the real sink except for the rules it is told to
// reject.
type failingSink struct {
	inner   TaskSink
	failFor map[uint]bool
}

func (s *failingSink) CreateInstances(ctx context.Context, tx *gorm.DB, rule model.RecurrenceRule, dueDate time.Time, properties []model.Property) (int, error) {
	if s.failFor[rule.ID] {
		return 0, errors.New("sink unavailable")
	}
	return s.inner.CreateInstances(ctx, tx, rule, dueDate, properties)
}

func TestRunDueGenerationsCreatesAndAdvances(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "alice")
	property := createProperty(t, db, owner.ID, "seafront")

	due := day(2024, time.June, 3) // a Monday
	dow := int(time.Monday)
	rule := createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeCleaning,
		Title:       "Changeover clean",
		Frequency:   model.FrequencyWeekly,
		Interval:    1,
		DayOfWeek:   &dow,
		StartDate:   day(2024, time.May, 27),
		NextRunDate: due,
		IsActive:    true,
	})

	engine := newEngine(t, db, nil)
	now := time.Date(2024, time.June, 5, 9, 30, 0, 0, time.UTC)
	result, err := engine.RunDueGenerations(context.Background(), now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.GeneratedCount != 1 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	var tasks []model.TaskInstance
	if err := db.Where("rule_id = ?", rule.ID).Find(&tasks).Error; err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(tasks))
	}
	// The instance keeps the intended schedule date, not the run time.
	if !tasks[0].DueDate.Equal(due) {
		t.Fatalf("due date %s, want %s", tasks[0].DueDate.Format("2006-01-02"), due.Format("2006-01-02"))
	}
	if tasks[0].Status != model.TaskStatusPending {
		t.Fatalf("status %s, want pending", tasks[0].Status)
	}

	updated := reloadRule(t, db, rule.ID)
	if !updated.NextRunDate.Equal(day(2024, time.June, 10)) {
		t.Fatalf("next run %s, want 2024-06-10", updated.NextRunDate.Format("2006-01-02"))
	}
	if updated.TotalGenerated != 1 || updated.LastGeneratedAt == nil || !updated.IsActive {
		t.Fatalf("schedule state not advanced: %+v", updated)
	}
}

func TestRunDueGenerationsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "bob")
	property := createProperty(t, db, owner.ID, "hillside")
	createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeInspection,
		Title:       "Smoke detector check",
		Frequency:   model.FrequencyMonthly,
		Interval:    1,
		StartDate:   day(2024, time.January, 10),
		NextRunDate: day(2024, time.February, 10),
		IsActive:    true,
	})

	engine := newEngine(t, db, nil)
	now := time.Date(2024, time.February, 11, 8, 0, 0, 0, time.UTC)
	first, err := engine.RunDueGenerations(context.Background(), now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.GeneratedCount != 1 {
		t.Fatalf("first run generated %d, want 1", first.GeneratedCount)
	}

	second, err := engine.RunDueGenerations(context.Background(), now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.DueCount != 0 || second.GeneratedCount != 0 {
		t.Fatalf("second run should be a no-op: %+v", second)
	}
}

func TestOwnerRuleFansOutAcrossProperties(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "carol")
	for _, name := range []string{"north", "south", "lake"} {
		createProperty(t, db, owner.ID, name)
	}
	rule := createRule(t, db, model.RecurrenceRule{
		OwnerID:     &owner.ID,
		TaskType:    model.TaskTypeInspection,
		Title:       "Quarterly walkthrough",
		Frequency:   model.FrequencyQuarterly,
		Interval:    1,
		StartDate:   day(2024, time.January, 2),
		NextRunDate: day(2024, time.April, 2),
		IsActive:    true,
	})

	engine := newEngine(t, db, nil)
	result, err := engine.RunDueGenerations(context.Background(), time.Date(2024, time.April, 2, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.GeneratedCount != 3 {
		t.Fatalf("generated %d, want 3", result.GeneratedCount)
	}
	updated := reloadRule(t, db, rule.ID)
	if updated.TotalGenerated != 3 {
		t.Fatalf("total generated %d, want 3", updated.TotalGenerated)
	}
	if !updated.NextRunDate.Equal(day(2024, time.July, 2)) {
		t.Fatalf("next run %s, want 2024-07-02", updated.NextRunDate.Format("2006-01-02"))
	}
}

func TestOwnerWithoutPropertiesStillAdvances(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "dave")
	rule := createRule(t, db, model.RecurrenceRule{
		OwnerID:     &owner.ID,
		TaskType:    model.TaskTypeOther,
		Title:       "Portfolio review",
		Frequency:   model.FrequencyMonthly,
		Interval:    1,
		StartDate:   day(2024, time.March, 1),
		NextRunDate: day(2024, time.April, 1),
		IsActive:    true,
	})

	engine := newEngine(t, db, nil)
	result, err := engine.RunDueGenerations(context.Background(), time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.GeneratedCount != 0 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	updated := reloadRule(t, db, rule.ID)
	if !updated.NextRunDate.Equal(day(2024, time.May, 1)) {
		t.Fatalf("next run %s, want 2024-05-01", updated.NextRunDate.Format("2006-01-02"))
	}
}

func TestEndDateDeactivatesAfterLastOccurrence(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "erin")
	property := createProperty(t, db, owner.ID, "cabin")
	end := day(2024, time.March, 1)
	rule := createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeRepair,
		Title:       "Boiler service",
		Frequency:   model.FrequencyMonthly,
		Interval:    1,
		StartDate:   day(2024, time.January, 20),
		EndDate:     &end,
		NextRunDate: day(2024, time.February, 20),
		IsActive:    true,
	})

	engine := newEngine(t, db, nil)
	result, err := engine.RunDueGenerations(context.Background(), time.Date(2024, time.February, 21, 7, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.GeneratedCount != 1 {
		t.Fatalf("generated %d, want 1 (the February occurrence)", result.GeneratedCount)
	}

	updated := reloadRule(t, db, rule.ID)
	if updated.IsActive {
		t.Fatal("rule should be deactivated, next occurrence exceeds end date")
	}
	if !updated.NextRunDate.Equal(day(2024, time.February, 20)) {
		t.Fatalf("next run moved to %s, should stay at last valid value", updated.NextRunDate.Format("2006-01-02"))
	}

	// Even with NextRunDate forever in the past, the rule never fires again.
	later, err := engine.RunDueGenerations(context.Background(), time.Date(2024, time.May, 1, 7, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("later run: %v", err)
	}
	if later.DueCount != 0 {
		t.Fatalf("deactivated rule selected again: %+v", later)
	}
}

func TestSinkFailureIsIsolatedPerRule(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "frank")
	property := createProperty(t, db, owner.ID, "annex")
	broken := createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeCleaning,
		Title:       "Window clean",
		Frequency:   model.FrequencyWeekly,
		Interval:    1,
		StartDate:   day(2024, time.May, 1),
		NextRunDate: day(2024, time.May, 8),
		IsActive:    true,
	})
	healthy := createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeCleaning,
		Title:       "Garden tidy",
		Frequency:   model.FrequencyWeekly,
		Interval:    1,
		StartDate:   day(2024, time.May, 1),
		NextRunDate: day(2024, time.May, 8),
		IsActive:    true,
	})

	realSink := NewTaskService(repository.NewTaskRepository(db), repository.NewContactRepository(db))
	sink := &failingSink{inner: realSink, failFor: map[uint]bool{broken.ID: true}}
	engine := newEngine(t, db, sink)

	result, err := engine.RunDueGenerations(context.Background(), time.Date(2024, time.May, 8, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.GeneratedCount != 1 {
		t.Fatalf("generated %d, want 1 from the healthy rule", result.GeneratedCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].RuleID != broken.ID {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}

	// The failed rule's schedule is untouched so it is retried next run, and
	// no instance leaked out of the rolled back transaction.
	after := reloadRule(t, db, broken.ID)
	if !after.NextRunDate.Equal(day(2024, time.May, 8)) || after.TotalGenerated != 0 {
		t.Fatalf("failed rule was advanced: %+v", after)
	}
	var count int64
	if err := db.Model(&model.TaskInstance{}).Where("rule_id = ?", broken.ID).Count(&count).Error; err != nil {
		t.Fatalf("count instances: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed rule produced %d instances", count)
	}

	advanced := reloadRule(t, db, healthy.ID)
	if !advanced.NextRunDate.Equal(day(2024, time.May, 15)) {
		t.Fatalf("healthy rule not advanced: %s", advanced.NextRunDate.Format("2006-01-02"))
	}
}

func TestMissingAssigneeIsRuleError(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "grace")
	property := createProperty(t, db, owner.ID, "loft")
	ghost := uint(999)
	rule := createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeRepair,
		Title:       "Gutter repair",
		AssigneeID:  &ghost,
		Frequency:   model.FrequencyMonthly,
		Interval:    1,
		StartDate:   day(2024, time.January, 5),
		NextRunDate: day(2024, time.February, 5),
		IsActive:    true,
	})

	engine := newEngine(t, db, nil)
	result, err := engine.RunDueGenerations(context.Background(), time.Date(2024, time.February, 5, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].RuleID != rule.ID {
		t.Fatalf("expected one rule error, got %+v", result)
	}
	after := reloadRule(t, db, rule.ID)
	if !after.NextRunDate.Equal(day(2024, time.February, 5)) {
		t.Fatalf("rule with bad assignee was advanced: %+v", after)
	}
}

func TestStaleScheduleClaimIsSkipped(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "henry")
	property := createProperty(t, db, owner.ID, "mill")
	rule := createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeCleaning,
		Title:       "Hallway mop",
		Frequency:   model.FrequencyDaily,
		Interval:    1,
		StartDate:   day(2024, time.July, 1),
		NextRunDate: day(2024, time.July, 2),
		IsActive:    true,
	})

	engine := newEngine(t, db, nil)
	now := time.Date(2024, time.July, 2, 11, 0, 0, 0, time.UTC)
	if _, err := engine.RunDueGenerations(context.Background(), now); err != nil {
		t.Fatalf("run: %v", err)
	}

	// A second invocation still holding the pre-run snapshot must lose the
	// conditional claim and create nothing.
	created, err := engine.generateForRule(context.Background(), now, rule)
	if !errors.Is(err, errScheduleClaimed) {
		t.Fatalf("expected claim conflict, got created=%d err=%v", created, err)
	}
	var count int64
	if err := db.Model(&model.TaskInstance{}).Where("rule_id = ?", rule.ID).Count(&count).Error; err != nil {
		t.Fatalf("count instances: %v", err)
	}
	if count != 1 {
		t.Fatalf("occurrence generated %d times, want exactly once", count)
	}
}

func TestRunHistoryIsRecorded(t *testing.T) {
	db := newTestDB(t)
	owner := createOwner(t, db, "iris")
	property := createProperty(t, db, owner.ID, "barn")
	createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeCleaning,
		Title:       "Stable sweep",
		Frequency:   model.FrequencyWeekly,
		Interval:    1,
		StartDate:   day(2024, time.August, 1),
		NextRunDate: day(2024, time.August, 8),
		IsActive:    true,
	})

	realSink := NewTaskService(repository.NewTaskRepository(db), repository.NewContactRepository(db))
	broken := createRule(t, db, model.RecurrenceRule{
		PropertyID:  &property.ID,
		TaskType:    model.TaskTypeRepair,
		Title:       "Fence fix",
		Frequency:   model.FrequencyWeekly,
		Interval:    1,
		StartDate:   day(2024, time.August, 1),
		NextRunDate: day(2024, time.August, 8),
		IsActive:    true,
	})
	engine := newEngine(t, db, &failingSink{inner: realSink, failFor: map[uint]bool{broken.ID: true}})

	result, err := engine.RunDueGenerations(context.Background(), time.Date(2024, time.August, 8, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	runs, err := repository.NewRunRepository(db).ListRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	run := runs[0]
	if run.ID != result.RunID || run.RulesDue != 2 || run.Generated != 1 || run.Failed != 1 {
		t.Fatalf("unexpected run record: %+v", run)
	}
}

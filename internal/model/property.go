package model

import "time"

// Report cadences an owner can subscribe to.
const (
	ReportCadenceDaily  = "daily"
	ReportCadenceWeekly = "weekly"
)

// Owner holds one or more properties and optionally receives a periodic
// portfolio report. NextReportAt is the reified send schedule: the dispatcher
// advances it with the same recurrence primitive the generation engine uses.
type Owner struct {
	ID            uint `gorm:"primaryKey"`
	Name          string
	Email         string
	ReportCadence string     // empty = no reports
	ReportDay     *int       // weekday for weekly cadence, 0 = Sunday
	ReportHour    int        `gorm:"default:8"`
	NextReportAt  *time.Time `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Properties    []Property `gorm:"foreignKey:OwnerID"`
}

// Property is a managed unit tasks are generated against.
type Property struct {
	ID        uint `gorm:"primaryKey"`
	OwnerID   uint `gorm:"index"`
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

package model

import "time"

// Contact is an assignable person: staff, vendor or inspector.
type Contact struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	Email     string
	Phone     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

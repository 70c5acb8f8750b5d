package model

import "time"

// Restaurant is the tenant every task, tag and user belongs to.
type Restaurant struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

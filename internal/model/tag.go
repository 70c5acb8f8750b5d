package model

import "time"

// Tag labels tasks within a restaurant (kitchen, bar, cleaning...).
type Tag struct {
	ID           uint   `gorm:"primaryKey"`
	RestaurantID uint   `gorm:"index:idx_restaurant_tag_name,unique"`
	Name         string `gorm:"index:idx_restaurant_tag_name,unique"`
	Color        string
	CreatedAt    time.Time
}

// TaskAssignment links a task to one of its assignees.
type TaskAssignment struct {
	TaskID    uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

// TaskTag links a task to a tag.
type TaskTag struct {
	TaskID uint `gorm:"primaryKey"`
	TagID  uint `gorm:"primaryKey"`
}

package model

import "time"

// User roles.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleMaintainer = "maintainer"
	RoleWorker     = "worker"
)

// User is a staff member of a restaurant. TelegramID is set once the user
// links a Telegram account to receive push reminders.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	RestaurantID uint   `gorm:"index"`
	Email        string `gorm:"uniqueIndex"`
	Name         string
	Role         string `gorm:"default:worker"`
	TelegramID   *int64 `gorm:"uniqueIndex"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName falls back to a generic label for unnamed users.
func (u User) DisplayName() string {
	if u.Name == "" {
		return "User"
	}
	return u.Name
}

// CanManage reports whether the user may create and verify tasks.
func (u User) CanManage() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}

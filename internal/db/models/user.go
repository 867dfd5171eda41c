package models

import "time"

// User is an account resolved from an OAuth provider callback.
// OpenID and Email each identify at most one row; the unique indexes are
// load-bearing: concurrent registrations with the same identity must make
// the second insert fail instead of producing a duplicate account.
type User struct {
	ID         uint   `gorm:"primaryKey"`
	OpenID     string `gorm:"uniqueIndex;not null"` // provider-issued opaque identifier
	Email      string `gorm:"uniqueIndex"`
	Name       string
	Avatar     string
	Permission int `gorm:"default:0"` // 0 = standard, 1 = administrator
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Admin reports whether the user holds the administrator permission level.
func (u *User) Admin() bool {
	return u.Permission == 1
}

package models

import "time"

// NotionConnection links a user to an authorized Notion workspace.
// A user may connect several workspaces, one row per workspace.
type NotionConnection struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        uint   `gorm:"index:idx_user_workspace,unique"`
	WorkspaceID   string `gorm:"index:idx_user_workspace,unique"`
	AccessToken   string
	WorkspaceName string
	WorkspaceIcon string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

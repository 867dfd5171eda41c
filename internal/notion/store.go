// Package notion persists workspace connections created through the Notion
// OAuth flow.
package notion

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corvuslabs/notebase/internal/db/models"
)

// Store reads and writes workspace connections.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save inserts the connection, or refreshes the token and workspace metadata
// when the user already connected this workspace.
func (s *Store) Save(ctx context.Context, conn *models.NotionConnection) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "workspace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "workspace_name", "workspace_icon", "updated_at",
		}),
	}).Create(conn).Error
}

// Exists reports whether the user already has a connection to the workspace.
func (s *Store) Exists(ctx context.Context, userID uint, workspaceID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.NotionConnection{}).
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		Count(&count).Error
	return count > 0, err
}

// CountForUser returns the number of distinct workspaces the user connected.
func (s *Store) CountForUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.NotionConnection{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ListForUser returns the user's connections, newest first.
func (s *Store) ListForUser(ctx context.Context, userID uint) ([]models.NotionConnection, error) {
	var conns []models.NotionConnection
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&conns).Error
	return conns, err
}

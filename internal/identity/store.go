package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corvuslabs/notebase/internal/db/models"
	"gorm.io/gorm"
)

// Store is the persistence contract the resolver depends on. Find methods
// return (nil, nil) when no row matches. Insert must reject duplicate
// openid/email loudly; implementations translate constraint violations to
// ErrRegistrationFailed.
type Store interface {
	FindByOpenID(ctx context.Context, openid string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Count(ctx context.Context) (int64, error)
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByOpenID(ctx context.Context, openid string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("open_id = ?", openid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) Insert(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
		}
		return err
	}
	if user.ID == 0 {
		return ErrRegistrationFailed
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// isUniqueViolation recognizes duplicate-key errors from gorm's translated
// error and from the raw SQLite message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

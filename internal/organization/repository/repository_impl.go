package repository

import (
	"context"
	"errors"

	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Create(&org).Error
}

func (r *repo) CreateUser(ctx context.Context, user domain.User) error {
	return r.db.WithContext(ctx).Create(&user).Error
}

func (r *repo) GetUser(ctx context.Context, userID snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnknownUser
		}
		return nil, err
	}
	return &user, nil
}

func (r *repo) Membership(ctx context.Context, userID snowflake.ID) (domain.Membership, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return domain.Membership{}, err
	}
	return domain.Membership{UserID: user.ID, OrgID: user.OrgID}, nil
}

func (r *repo) OrganizationExists(ctx context.Context, orgID snowflake.ID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", orgID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UserExists(ctx context.Context, userID snowflake.ID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

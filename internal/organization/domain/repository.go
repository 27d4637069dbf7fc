package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	CreateOrganization(ctx context.Context, org Organization) error
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID snowflake.ID) (*User, error)
	// Membership returns the user's org attachment; ErrUnknownUser if the
	// user does not exist.
	Membership(ctx context.Context, userID snowflake.ID) (Membership, error)
	OrganizationExists(ctx context.Context, orgID snowflake.ID) (bool, error)
	UserExists(ctx context.Context, userID snowflake.ID) (bool, error)
}

var (
	ErrUnknownUser         = errors.New("unknown_user")
	ErrUnknownOrganization = errors.New("unknown_organization")
)

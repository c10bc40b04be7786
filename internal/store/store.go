package store

import (
	"context"
	"errors"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// ErrNotFound is returned when a session or profile does not exist.
var ErrNotFound = errors.New("not found")

// ErrProfileDeleted is returned by UpsertProfile for an account an admin removed.
var ErrProfileDeleted = errors.New("profile deleted")

type Store interface {
	CreateSession(ctx context.Context, userID, title string, mode types.Mode) (*types.Session, error)
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context, userID string) ([]types.Session, error)
	ListAllSessions(ctx context.Context, limit int) ([]types.Session, error)
	DeleteSession(ctx context.Context, id string) error

	InsertMessage(ctx context.Context, sessionID string, role types.Role, content string) (*types.Message, error)
	GetMessages(ctx context.Context, sessionID string) ([]types.Message, error)

	RecordUsage(ctx context.Context, userID, endpoint string, tokens int) error
	UsageSummary(ctx context.Context, userID string) ([]types.UsageSummary, error)

	UpsertProfile(ctx context.Context, p types.Profile) error
	GetProfile(ctx context.Context, id string) (*types.Profile, error)
	ListProfiles(ctx context.Context) ([]types.Profile, error)
	SetBanned(ctx context.Context, id string, banned bool) error
	DeleteProfile(ctx context.Context, id string) error

	Close() error
}

// internal/handlers/api_server.go
package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/auth"
	"github.com/jason-s-yu/codincod/internal/cache"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/jason-s-yu/codincod/internal/room"
	"github.com/sirupsen/logrus"
)

// UserStore is the account side of the durable store.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	SearchUsersByNickname(ctx context.Context, prefix string, limit int) ([]*models.User, error)
}

type PuzzleStore interface {
	GetPuzzle(ctx context.Context, id uuid.UUID) (*models.Puzzle, error)
	ListPuzzlesByAuthor(ctx context.Context, authorID uuid.UUID) ([]*models.Puzzle, error)
}

type SubmissionStore interface {
	InsertSubmission(ctx context.Context, sub *judge.Submission, roomID uuid.UUID) error
	SaveSubmissionResults(ctx context.Context, sub *judge.Submission) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*judge.Submission, error)
}

// UserResolver loads users by id, usually through the Redis cache.
type UserResolver interface {
	User(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type LanguageCatalog interface {
	Get(name string) (models.Language, error)
	All() []models.Language
}

type JudgeRunPublisher interface {
	PublishJudgeRuns(ctx context.Context, records []cache.JudgeRunRecord) error
}

// GameServer holds everything the HTTP and websocket handlers need.
type GameServer struct {
	Users       UserStore
	Resolver    UserResolver
	Puzzles     PuzzleStore
	Submissions SubmissionStore
	Languages   LanguageCatalog

	Rooms      *room.Registry
	Judge      judge.Judge
	Dispatcher *judge.Dispatcher
	// Runs may be nil, in which case judge runs are not published.
	Runs JudgeRunPublisher

	Tokens *auth.TokenIssuer
	Hasher *auth.Hasher

	// BaseCtx outlives individual requests; background judging runs under it.
	BaseCtx context.Context
	Logger  logrus.FieldLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (gs *GameServer) now() time.Time {
	if gs.Now != nil {
		return gs.Now()
	}
	return time.Now()
}

package repositories

import (
	"context"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

type UserRepository interface {
	//create
	UpsertUser(ctx context.Context, user *models.User) error

	//get
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	//update
	UpdateStatus(ctx context.Context, id int64, status models.UserStatus) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error

	CountUsers(ctx context.Context) (int64, error)
}

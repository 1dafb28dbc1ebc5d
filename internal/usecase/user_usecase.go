package usecase

import (
	"context"
	"time"

	"chatsync/infrastructure/cache"
	"chatsync/internal/entity"
	"chatsync/internal/repository"
)

const displayNameTTL = 5 * time.Minute

type UserUsecase interface {
	Get(ctx context.Context, userId string) (entity.User, error)
	Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.User, error)
	DisplayName(ctx context.Context, userId string) (string, error)
	SetOnline(ctx context.Context, userId string, online bool) error
}

type userUsecase struct {
	userRepo repository.UserRepository
	names    *cache.MemCache
}

func NewUserUsecase(userRepository repository.UserRepository, names *cache.MemCache) UserUsecase {
	return &userUsecase{
		userRepo: userRepository,
		names:    names,
	}
}

func (u *userUsecase) Get(ctx context.Context, userId string) (entity.User, error) {
	return u.userRepo.Get(ctx, userId)
}

func (u *userUsecase) Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.User, error) {
	return u.userRepo.Index(ctx, filter)
}

// DisplayName resolves a user's name, memoized so the chat-list projection
// does not hit the store for every event.
func (u *userUsecase) DisplayName(ctx context.Context, userId string) (string, error) {
	if cached, ok := u.names.Get("name:" + userId); ok {
		if name, ok := cached.(string); ok {
			return name, nil
		}
	}

	user, err := u.userRepo.Get(ctx, userId)
	if err != nil {
		return "", err
	}

	u.names.Set("name:"+userId, user.Name, displayNameTTL)
	return user.Name, nil
}

func (u *userUsecase) SetOnline(ctx context.Context, userId string, online bool) error {
	return u.userRepo.SetOnline(ctx, userId, online)
}

package store

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/model"
)

func (s *gormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "user %s not found", id)
	}
	return &user, nil
}

func (s *gormStore) ListUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	result := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, apperr.Persistence(err, "list users")
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

func (s *gormStore) AllUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.User{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, apperr.Persistence(err, "list user ids")
	}
	return ids, nil
}

func (s *gormStore) ActiveEmployeeIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("role = ? AND status = ?", model.RoleUser, model.StatusActive).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, apperr.Persistence(err, "list active employee ids")
	}
	return ids, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *gormStore) FindUserIDsByFirstName(ctx context.Context, prefix string) ([]string, error) {
	pattern := likeEscaper.Replace(strings.ToLower(prefix)) + "%"
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where(`LOWER(first_name) LIKE ? ESCAPE '\'`, pattern).
		Pluck("id", &ids).Error; err != nil {
		return nil, apperr.Persistence(err, "find users by first name")
	}
	return ids, nil
}

func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&sub).Error
	return apperr.Persistence(err, "save push subscription")
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint, userID string) error {
	q := s.db.WithContext(ctx).Where("endpoint = ?", endpoint)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	return apperr.Persistence(q.Delete(&model.PushSubscription{}).Error, "delete push subscription")
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, lookupErr(err, "subscription not found")
	}
	return &sub, nil
}

func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, apperr.Persistence(err, "fetch subscriptions for user %s", userID)
	}
	return subs, nil
}

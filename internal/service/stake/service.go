package stake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ludo-service/internal/model"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// Service is the catalogue of wager/reward tiers a match can be opened at.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type ListResult struct {
	Items []model.StakeTier
	Total int64
}

type MutationParams struct {
	Name   string
	Wager  int64
	Reward int64
	Sort   int
	Status string
}

func (p MutationParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: tier name required", appErr.ErrInvalidAction)
	}
	if p.Wager < 0 || p.Reward < 0 {
		return fmt.Errorf("%w: negative amount", appErr.ErrInvalidAction)
	}
	if p.Reward < p.Wager {
		return fmt.Errorf("%w: reward below wager", appErr.ErrInvalidAction)
	}
	switch p.Status {
	case "", StatusEnabled, StatusDisabled:
		return nil
	}
	return fmt.Errorf("%w: unknown status %q", appErr.ErrInvalidAction, p.Status)
}

// ListTiers returns the enabled tiers in display order.
func (s *Service) ListTiers(ctx context.Context) ([]model.StakeTier, error) {
	var tiers []model.StakeTier
	if err := s.db.WithContext(ctx).
		Where("status = ?", StatusEnabled).
		Order("sort ASC, wager ASC").
		Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

func (s *Service) AdminListTiers(ctx context.Context, page, size int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&model.StakeTier{}).
		Count(&total).Error; err != nil {
		return nil, err
	}

	var tiers []model.StakeTier
	if total > 0 {
		offset := (page - 1) * size
		if err := s.db.WithContext(ctx).
			Model(&model.StakeTier{}).
			Order("id DESC").
			Limit(size).
			Offset(offset).
			Find(&tiers).Error; err != nil {
			return nil, err
		}
	}

	return &ListResult{
		Items: tiers,
		Total: total,
	}, nil
}

func (s *Service) CreateTier(ctx context.Context, params MutationParams) (*model.StakeTier, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	status := params.Status
	if status == "" {
		status = StatusEnabled
	}
	tier := model.StakeTier{
		Name:   params.Name,
		Wager:  params.Wager,
		Reward: params.Reward,
		Sort:   params.Sort,
		Status: status,
	}
	if err := s.db.WithContext(ctx).Create(&tier).Error; err != nil {
		return nil, err
	}
	logger.Log.Info("stake tier created", zap.Int64("tierID", tier.ID), zap.Int64("wager", tier.Wager))
	return &tier, nil
}

func (s *Service) UpdateTier(ctx context.Context, id int64, params MutationParams) (*model.StakeTier, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"name":   params.Name,
		"wager":  params.Wager,
		"reward": params.Reward,
		"sort":   params.Sort,
	}
	if params.Status != "" {
		updates["status"] = params.Status
	}

	result := s.db.WithContext(ctx).
		Model(&model.StakeTier{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, appErr.ErrStakeNotFound
	}

	var tier model.StakeTier
	if err := s.db.WithContext(ctx).First(&tier, id).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetTier returns an enabled tier. Missing and disabled tiers are both
// ErrStakeNotFound.
func (s *Service) GetTier(ctx context.Context, id int64) (*model.StakeTier, error) {
	var tier model.StakeTier
	if err := s.db.WithContext(ctx).First(&tier, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrStakeNotFound
		}
		logger.Log.Error("failed to load stake tier", zap.Int64("tierID", id), zap.Error(err))
		return nil, err
	}
	if tier.Status != StatusEnabled {
		return nil, appErr.ErrStakeNotFound
	}
	return &tier, nil
}

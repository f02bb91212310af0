package reward

import (
	"context"
	"errors"
	"fmt"

	"rewardsvault/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrServiceNotFound = errors.New("reward service not found")
	ErrInvalidBounds   = errors.New("invalid reward service amount bounds")
)

// ServiceInput is the admin-editable part of a RewardService.
type ServiceInput struct {
	Name        string
	Description string
	Formula     string
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	IsActive    bool
}

// Catalog is the admin CRUD over reward services.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Create(ctx context.Context, in ServiceInput) (*models.RewardService, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	svc := models.RewardService{
		Name:        in.Name,
		Description: in.Description,
		Formula:     in.Formula,
		MinAmount:   in.MinAmount,
		MaxAmount:   in.MaxAmount,
		IsActive:    in.IsActive,
	}
	if err := c.db.WithContext(ctx).Create(&svc).Error; err != nil {
		return nil, err
	}
	return &svc, nil
}

func (c *Catalog) Update(ctx context.Context, id uint, in ServiceInput) (*models.RewardService, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	db := c.db.WithContext(ctx)
	var svc models.RewardService
	if err := db.First(&svc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	err := db.Model(&svc).Updates(map[string]interface{}{
		"name":        in.Name,
		"description": in.Description,
		"formula":     in.Formula,
		"min_amount":  in.MinAmount,
		"max_amount":  in.MaxAmount,
		"is_active":   in.IsActive,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := db.First(&svc, id).Error; err != nil {
		return nil, err
	}
	return &svc, nil
}

// List returns all services, or only active ones.
func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]models.RewardService, error) {
	q := c.db.WithContext(ctx).Order("id ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.RewardService
	return out, q.Find(&out).Error
}

// Preview evaluates a formula without saving it.
func Preview(expr string, amount decimal.Decimal) (decimal.Decimal, error) {
	f, err := Compile(expr)
	if err != nil {
		return decimal.Zero, err
	}
	return f.Reward(amount)
}

func validate(in ServiceInput) error {
	if _, err := Compile(in.Formula); err != nil {
		return err
	}
	if in.MinAmount.IsNegative() || in.MaxAmount.IsNegative() {
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidBounds)
	}
	if in.MaxAmount.IsPositive() && in.MinAmount.GreaterThan(in.MaxAmount) {
		return fmt.Errorf("%w: min amount exceeds max amount", ErrInvalidBounds)
	}
	return nil
}

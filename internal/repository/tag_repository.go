package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"kitchenboard/internal/model"
)

// TagRepository manages restaurant tags.
type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) GetOrCreate(ctx context.Context, restaurantID uint, name string) (*model.Tag, error) {
	if name == "" {
		return nil, nil
	}

	var tag model.Tag
	db := r.db.WithContext(ctx)
	err := db.Where("restaurant_id = ? AND name = ?", restaurantID, name).First(&tag).Error
	switch {
	case err == nil:
		return &tag, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		tag = model.Tag{RestaurantID: restaurantID, Name: name}
		if err := db.Create(&tag).Error; err != nil {
			return nil, fmt.Errorf("create tag: %w", err)
		}
		return &tag, nil
	default:
		return nil, fmt.Errorf("find tag: %w", err)
	}
}

package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type VehicleRepository struct {
	db *gorm.DB
}

func NewVehicleRepository(db *gorm.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

func (Vehicle) TableName() string {
	return "tb_vehicle"
}

// Vehicle is one stored consensus: the plate string and a reference to the
// evidence image.
type Vehicle struct {
	ID        int64     `gorm:"column:ve_idx;primaryKey;autoIncrement"`
	Number    string    `gorm:"column:ve_number;not null"`
	Image     string    `gorm:"column:ve_img;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (r *VehicleRepository) Create(ctx context.Context, number, imageRef string) (*Vehicle, error) {
	v := Vehicle{
		Number:    number,
		Image:     imageRef,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&v).Error; err != nil {
		return nil, fmt.Errorf("failed to insert vehicle: %w", err)
	}
	return &v, nil
}

func (r *VehicleRepository) Find(ctx context.Context, number *string, limit, offset int) ([]Vehicle, error) {
	query := r.db.WithContext(ctx).Model(&Vehicle{})

	if number != nil {
		query = query.Where("ve_number = ?", *number)
	}

	query = query.Order("created_at DESC").Order("ve_idx DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var vehicles []Vehicle
	err := query.Find(&vehicles).Error
	return vehicles, err
}

package models

import "time"

// User is the host application's account row. The engine only ever checks
// existence; account lifecycle is owned elsewhere. The primary key doubles as
// the aggregator's app_user_id.
type User struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Email     *string   `gorm:"column:email"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

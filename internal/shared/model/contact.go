// Package model 定义核心数据模型
package model

import "time"

// Contact 联系人
//
// 每条联系人记录归属于单个用户（UserID 外键），
// 所有查询都必须带 UserID 过滤，跨租户不可见。
type Contact struct {
	ID             int64     `json:"id" db:"id" bson:"_id"`
	FirstName      string    `json:"first_name" db:"first_name" bson:"first_name"`
	LastName       string    `json:"last_name" db:"last_name" bson:"last_name"`
	Email          string    `json:"email" db:"email" bson:"email"`
	PhoneNumber    string    `json:"phone_number" db:"phone_number" bson:"phone_number"`
	BirthDate      time.Time `json:"birth_date" db:"birth_date" bson:"birth_date"`
	AdditionalData string    `json:"additional_data,omitempty" db:"additional_data" bson:"additional_data,omitempty"`
	UserID         int64     `json:"user_id" db:"user_id" bson:"user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

package domain

import "strings"

// User staff member that can author, approve or be assigned articles
type User struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  uint64 `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	FirstName string `gorm:"column:first_name;type:varchar(100)" json:"first_name"`
	LastName  string `gorm:"column:last_name;type:varchar(100)" json:"last_name"`
	Email     string `gorm:"column:email;type:varchar(255);not null" json:"email"`
}

func (User) TableName() string { return "users" }

// Name full display name
func (u *User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

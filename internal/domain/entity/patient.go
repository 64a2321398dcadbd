package entity

import "time"

// Patient is a registered patient. DocumentPhotoPath is a storage key and is
// never exposed directly.
type Patient struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName          string    `gorm:"type:varchar(255);not null" json:"full_name"`
	Email             string    `gorm:"type:varchar(255);not null;uniqueIndex:patients_email_unique" json:"email"`
	PhoneCountryCode  string    `gorm:"type:varchar(10);not null" json:"phone_country_code"`
	PhoneNumber       string    `gorm:"type:varchar(20);not null" json:"phone_number"`
	DocumentPhotoPath string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Patient) TableName() string {
	return "patients"
}

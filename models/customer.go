package models

import "time"

// Customer is identified by the exact (Email, FullName) pair.
type Customer struct {
	ID          string    `json:"id" bson:"_id"`
	FullName    string    `json:"fullName" bson:"fullName"`
	Email       string    `json:"email" bson:"email"`
	PhoneNumber string    `json:"phoneNumber" bson:"phoneNumber"`
	Address     string    `json:"address" bson:"address"`
	City        string    `json:"city,omitempty" bson:"city,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

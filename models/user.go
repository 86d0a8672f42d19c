// models/user.go
package models

// UserContact is the projection of a platform user that delivery needs.
type UserContact struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name" json:"name"`
	Email    string `bson:"email" json:"email"`
	Phone    string `bson:"phoneNumber" json:"phoneNumber"`
	FCMToken string `bson:"fcmToken,omitempty" json:"-"`
}

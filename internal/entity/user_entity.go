package entity

import "time"

type User struct {
	Id        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	IsOnline  bool      `bson:"isOnline" json:"isOnline"`
	LastSeen  int64     `bson:"lastSeen" json:"lastSeen"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

type UserIndexFilter struct {
	Ids []string `bson:"ids"`
}

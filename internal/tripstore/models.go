package tripstore

import "time"

// userRecord is the persisted identity row. Email, password hash, and token
// are nullable: external accounts carry no hash, and token holds only the
// last issued bearer token.
type userRecord struct {
	ID           uint    `gorm:"column:id;primaryKey"`
	Username     string  `gorm:"column:username;size:64;not null"`
	Email        *string `gorm:"column:email;size:64;uniqueIndex"`
	PasswordHash *string `gorm:"column:password_hash;size:128"`
	Token        *string `gorm:"column:token;size:512;index"`
	External     bool    `gorm:"column:external;not null;default:false"`
}

func (userRecord) TableName() string {
	return "users"
}

// Trip is a planned trip.
type Trip struct {
	ID          uint      `gorm:"column:id;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;size:128;not null" json:"name"`
	Destination string    `gorm:"column:destination;size:128" json:"destination"`
	StartDate   time.Time `gorm:"column:start_date" json:"start_date"`
	EndDate     time.Time `gorm:"column:end_date" json:"end_date"`
}

// TableName pins the table name regardless of GORM pluralization rules.
func (Trip) TableName() string {
	return "trips"
}

// Lodging is a place to stay, shareable between trips.
type Lodging struct {
	ID      uint   `gorm:"column:id;primaryKey" json:"id"`
	Name    string `gorm:"column:name;size:128;not null" json:"name"`
	Address string `gorm:"column:address;size:256" json:"address"`
	URL     string `gorm:"column:url;size:256" json:"url"`
}

func (Lodging) TableName() string {
	return "lodgings"
}

// TripLodging associates a lodging with a trip.
type TripLodging struct {
	TripID    uint `gorm:"column:trip_id;primaryKey" json:"trip_id"`
	LodgingID uint `gorm:"column:lodging_id;primaryKey" json:"lodging_id"`
}

func (TripLodging) TableName() string {
	return "trip_lodgings"
}

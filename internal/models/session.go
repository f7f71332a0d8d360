package models

import "time"

// SheetSession groups the records produced by one sheet import.
type SheetSession struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	SheetTitle string    `json:"sheetTitle"`
	Headers    []string  `json:"headers"`
	ItemCount  int       `json:"itemCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type SaveResult struct {
	Deleted  int `json:"deleted"`
	Updated  int `json:"updated"`
	Inserted int `json:"inserted"`
}

// ShipmentFilter narrows a listing. Zero values disable the corresponding filter.
type ShipmentFilter struct {
	From time.Time
	To   time.Time

	VehicleNumber string
	DriverName    string
	Origin        string
	Destination   string
	Contractor    string
}

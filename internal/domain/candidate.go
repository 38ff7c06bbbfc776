package domain

// Candidate is a discovery profile as returned by the candidate fetch,
// plus the derived DistanceKM filled in by the geo filter.
type Candidate struct {
	UserID          int64       `json:"user_id"`
	DisplayName     string      `json:"display_name"`
	Age             int         `json:"age"`
	City            string      `json:"city"`
	Bio             *string     `json:"bio,omitempty"`
	PrimaryPhotoURL *string     `json:"primary_photo_url,omitempty"`
	Coordinate      *Coordinate `json:"coordinate,omitempty"`
	DistanceKM      float64     `json:"distance_km"`
}

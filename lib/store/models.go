package store

// Contact contains the fields for an address book entry saved to DB. Addr is unique within the book,
// case-insensitively.
type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Addr string `json:"address"`
}

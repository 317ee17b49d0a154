package table

import "time"

// Row is one line of the editable product table
type Row struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Barcode     string  `json:"barcode"`
}

// Table is the result of the latest successful scan plus any user edits
type Table struct {
	ID        string    `json:"id"`
	Column    string    `json:"column"`
	Comment   string    `json:"comment,omitempty"`
	Model     string    `json:"model"`
	Rows      []Row     `json:"rows"`
	Pages     []string  `json:"pages"` // stored preview filenames, in page order
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package model

// Pagination describes one page of an ordered listing. Every listing endpoint
// returns the same descriptor shape.
type Pagination struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	HasNext       bool  `json:"has_next"`
	HasPrevious   bool  `json:"has_previous"`
	IsFirst       bool  `json:"is_first"`
	IsLast        bool  `json:"is_last"`
}

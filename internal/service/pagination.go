package service

import (
	"engagehub/internal/model"

	apperr "engagehub/internal/errors"
)

// DefaultPageSize is applied when a caller asks for no particular size.
const DefaultPageSize = 20

// MaxPageSize bounds a page so the batched reply fetch can never fan out
// past repository.MaxParentBatch.
const MaxPageSize = 100

// ValidatePageRequest rejects page/size combinations before any store call.
func ValidatePageRequest(page, size int) error {
	if page < 0 || size <= 0 {
		return apperr.ErrInvalidPageRequest
	}
	return nil
}

// PageOffset converts a page index into the slice offset the repository
// uses; assembler and repository agree on slicing through this one helper.
func PageOffset(page, size int) int {
	return page * size
}

// AssemblePagination builds the descriptor every listing returns. Pure
// function, no I/O.
func AssemblePagination(totalCount int64, page, size int) (model.Pagination, error) {
	if err := ValidatePageRequest(page, size); err != nil {
		return model.Pagination{}, err
	}

	totalPages := int((totalCount + int64(size) - 1) / int64(size))
	hasNext := int64(page+1)*int64(size) < totalCount

	return model.Pagination{
		Page:          page,
		Size:          size,
		TotalElements: totalCount,
		TotalPages:    totalPages,
		HasNext:       hasNext,
		HasPrevious:   page > 0,
		IsFirst:       page == 0,
		IsLast:        !hasNext,
	}, nil
}

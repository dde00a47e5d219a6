package engine

import "github.com/prodbi/extractor/pkg/errors"

// PaginationKind selects the pagination strategy a connector drives.
type PaginationKind string

const (
	// PaginationCursor follows an opaque server-issued cursor, GraphQL style.
	PaginationCursor PaginationKind = "cursor"
	// PaginationPageNumber walks page=1,2,3... query parameters.
	PaginationPageNumber PaginationKind = "page_number"
	// PaginationOffset walks offset/limit windows.
	PaginationOffset PaginationKind = "offset"
)

// PageState is the position within a paginated result set. Exactly one
// strategy is active per job; the fields of the other strategies stay zero.
// State only moves forward during a job, never rewinds.
type PageState struct {
	Kind PaginationKind

	// Cursor pagination. An empty cursor means the first page.
	Cursor string

	// Page-number pagination, 1-based.
	Page int

	// Offset pagination.
	Offset int
	Limit  int
}

// NewCursorState returns the initial state for cursor pagination.
func NewCursorState() PageState {
	return PageState{Kind: PaginationCursor}
}

// NewPageNumberState returns the initial state for page-number pagination.
func NewPageNumberState() PageState {
	return PageState{Kind: PaginationPageNumber, Page: 1}
}

// NewOffsetState returns the initial state for offset pagination.
func NewOffsetState(limit int) PageState {
	return PageState{Kind: PaginationOffset, Offset: 0, Limit: limit}
}

// Advance validates that next moves strictly forward and returns it. Cursor
// states accept any server-supplied replacement; numeric states must
// increase. A backwards transition aborts the job rather than loop forever.
func (s PageState) Advance(next PageState) (PageState, error) {
	if next.Kind != s.Kind {
		return s, errors.Newf(errors.ErrorTypeData, "pagination kind changed mid-job: %s -> %s", s.Kind, next.Kind)
	}
	switch s.Kind {
	case PaginationPageNumber:
		if next.Page <= s.Page {
			return s, errors.Newf(errors.ErrorTypeData, "page number did not advance: %d -> %d", s.Page, next.Page)
		}
	case PaginationOffset:
		if next.Offset <= s.Offset {
			return s, errors.Newf(errors.ErrorTypeData, "offset did not advance: %d -> %d", s.Offset, next.Offset)
		}
	}
	return next, nil
}

// NextPage returns the state advanced by one page for page-number pagination.
func (s PageState) NextPage() PageState {
	next := s
	next.Page = s.Page + 1
	return next
}

// NextOffset returns the state advanced by one window for offset pagination.
func (s PageState) NextOffset() PageState {
	next := s
	next.Offset = s.Offset + s.Limit
	return next
}

// WithCursor returns the state pointing at the server-supplied cursor.
func (s PageState) WithCursor(cursor string) PageState {
	next := s
	next.Cursor = cursor
	return next
}

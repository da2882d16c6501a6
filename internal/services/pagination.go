package services

const (
	// DefaultPageSize is used when a list call passes a non-positive limit
	DefaultPageSize = 100
	// MaxPageSize caps the limit of a single list call
	MaxPageSize = 1000
)

// normalizePage clamps offset and limit into the range the repositories accept
func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}

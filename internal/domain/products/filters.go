package products

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseFilters builds Filters + Pagination from query parameters.
func ParseFilters(values url.Values) (Filters, Pagination, error) {
	filters := Filters{}
	pagination := Pagination{Limit: defaultLimit}

	filters.Query = strings.TrimSpace(values.Get("q"))
	filters.Brand = strings.TrimSpace(values.Get("brand"))
	filters.Category = strings.TrimSpace(values.Get("category"))
	filters.Tag = strings.TrimSpace(values.Get("tag"))

	active, err := parseBool("active", values.Get("active"))
	if err != nil {
		return filters, pagination, err
	}
	filters.Active = active

	featured, err := parseBool("featured", values.Get("featured"))
	if err != nil {
		return filters, pagination, err
	}
	filters.Featured = featured

	limit, err := parseLimit(values.Get("limit"))
	if err != nil {
		return filters, pagination, err
	}
	pagination.Limit = limit

	pagination.After = strings.TrimSpace(values.Get("after"))

	return filters, pagination, nil
}

func parseBool(field, value string) (*bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, FilterError{Field: field, Message: "must be true or false"}
	}
	return &parsed, nil
}

func parseLimit(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 1 {
		return 0, FilterError{Field: "limit", Message: "must be a positive integer"}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

package postgres

// derefString safely dereferences a string pointer, returning empty string if nil
func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// nullIfEmpty maps an empty string to SQL NULL.
func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

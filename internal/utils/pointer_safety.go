package utils

// Value dereferences v, returning the zero value for nil.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// Ptr returns a pointer to v. Used to populate optional PATCH fields.
func Ptr[T any](v T) *T {
	return &v
}

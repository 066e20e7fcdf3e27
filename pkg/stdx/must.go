// Package stdx holds small generic helpers with no better home.
package stdx

// Must1 returns v, panicking when err is not nil. Reserved for operations
// whose failure indicates a programming error rather than a runtime
// condition.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

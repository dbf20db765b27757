// Package dispatch runs annotation work on a fixed pool of goroutines.
package dispatch

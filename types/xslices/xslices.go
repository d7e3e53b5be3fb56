// Package xslices provide missing functionality to the slices package.
//
// It is a grab-bag of the generic slice helpers used throughout the tensordict
// packages: filling and copying, Last, Iota and the cumulative-sum used to
// derive jagged offsets from lengths.
package xslices

import (
	"reflect"

	"golang.org/x/exp/constraints"
)

// Number represents the slice element types that support arithmetic.
type Number interface {
	constraints.Integer | constraints.Float
}

// Copy returns a newly allocated copy of the given slice.
func Copy[T any](slice []T) []T {
	c := make([]T, len(slice))
	copy(c, slice)
	return c
}

// FillSlice fills the slice with the given value.
func FillSlice[T any](slice []T, value T) {
	for ii := range slice {
		slice[ii] = value
	}
}

// Last returns the last element of the slice.
func Last[T any](slice []T) T {
	return slice[len(slice)-1]
}

// Iota returns a slice of the given size with the values
// {start, start+1, ..., start+size-1}.
func Iota[T Number](start T, size int) (slice []T) {
	slice = make([]T, size)
	value := start
	for ii := range slice {
		slice[ii] = value
		value += 1
	}
	return
}

// CumSum returns the running sum of the slice: out[i] = sum(slice[:i+1]).
func CumSum[T Number](slice []T) (out []T) {
	out = make([]T, len(slice))
	var total T
	for ii, value := range slice {
		total += value
		out[ii] = total
	}
	return
}

// SlicesInDelta returns whether the two slices (given as `any`, but must be
// slices of the same number type and length) have all their elements within
// delta of each other.
func SlicesInDelta(s0, s1 any, delta float64) bool {
	s0V, s1V := reflect.ValueOf(s0), reflect.ValueOf(s1)
	if s0V.Len() != s1V.Len() {
		return false
	}
	for ii := 0; ii < s0V.Len(); ii++ {
		v0 := toFloat64(s0V.Index(ii))
		v1 := toFloat64(s1V.Index(ii))
		diff := v0 - v1
		if diff < 0 {
			diff = -diff
		}
		if diff > delta {
			return false
		}
	}
	return true
}

func toFloat64(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

// Package testutil holds the tiny assertion helpers used across test files.
package testutil

import (
	"os"
	"reflect"
	"testing"
)

// Assert fails the test when got differs from expected.
func Assert(t *testing.T, expected, got interface{}, msg string) {
	t.Helper()

	if !reflect.DeepEqual(expected, got) {
		t.Fatalf("%s: expected %v, got %v", msg, expected, got)
	}
}

// IsNil fails the test when v is a non-nil error or value.
func IsNil(t *testing.T, v interface{}, msg string) {
	t.Helper()

	if v == nil {
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		if rv.IsNil() {
			return
		}
	}

	t.Fatalf("%s: expected nil, got %v", msg, v)
}

// IsNotNil fails the test when v is nil.
func IsNotNil(t *testing.T, v interface{}, msg string) {
	t.Helper()

	if v == nil {
		t.Fatalf("%s: expected non-nil", msg)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		if rv.IsNil() {
			t.Fatalf("%s: expected non-nil", msg)
		}
	}
}

// ReadFile loads a fixture, failing the test on any error.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return data
}

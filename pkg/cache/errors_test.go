package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"direct", ErrKeyNotFound, true},
		{"wrapped", fmt.Errorf("layer L1: %w", ErrKeyNotFound), true},
		{"other", ErrLayerUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{ErrKeyNotFound, "miss"},
		{fmt.Errorf("%w: redis ping: refused", ErrLayerUnavailable), "unavailable"},
		{ErrInvalidKey, "invalid_key"},
		{fmt.Errorf("%w: redis get account:1", ErrInvalidValue), "invalid_value"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("get: %w", context.DeadlineExceeded), "deadline"},
		{errors.New("READONLY You can't write against a read only replica"), "backend"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

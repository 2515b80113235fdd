package main

import (
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidateWorkload(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateWorkload(100, 4, 4096, 1.1, 1.0))

	tests := []struct {
		name    string
		keys    int
		caches  int
		maxSize int
		zipfS   float64
		zipfV   float64
	}{
		{"zero keys", 0, 4, 4096, 1.1, 1},
		{"negative keys", -3, 4, 4096, 1.1, 1},
		{"zero caches", 100, 0, 4096, 1.1, 1},
		{"zero max size", 100, 4, 0, 1.1, 1},
		{"flat zipf", 100, 4, 4096, 1.0, 1},
		{"small zipf v", 100, 4, 4096, 1.1, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWorkload(tt.keys, tt.caches, tt.maxSize, tt.zipfS, tt.zipfV)
			assert.Error(t, err)
			assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
		})
	}
}

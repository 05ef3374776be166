package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := UnknownTable("table db1.t1 does not exist")
	assert.Equal(t, "UnknownTable (code 1025): table db1.t1 does not exist", err.Error())
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", DatabaseAlreadyExists("db1"))

	assert.True(t, errors.Is(wrapped, DatabaseAlreadyExists("")))
	assert.False(t, errors.Is(wrapped, TableAlreadyExists("")))
}

func TestIdempotentConflict(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorCode
		want bool
	}{
		{"database exists", DatabaseAlreadyExists("db"), true},
		{"table exists", TableAlreadyExists("t"), true},
		{"version mismatch", TableVersionMismatched("t"), true},
		{"bad arguments", BadArguments("name"), false},
		{"meta service error", MetaServiceError("boom"), false},
		{"database not empty", DatabaseNotEmpty("db"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.IsIdempotentConflict())
		})
	}
}

func TestNewUnknownCode(t *testing.T) {
	err := New(9999, "x")
	assert.Equal(t, "Unknown", err.Name)
}

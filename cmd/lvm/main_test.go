package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"setup failure", errors.New("chain connection error"), 1},
		{"below emergency threshold", ErrHealthBelowEmergency, EXIT_EMERGENCY},
		{"wrapped emergency", fmt.Errorf("%w: 1.0500 < 1.1", ErrHealthBelowEmergency), EXIT_EMERGENCY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

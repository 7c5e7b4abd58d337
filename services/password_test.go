package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     int
		label    string
	}{
		{"", 0, ""},
		{"abc", 0, ""},
		{"abcdefgh", 1, "Weak"},
		{"Abc", 1, "Weak"},
		{"Abcdefgh", 2, "Medium"},
		{"abcdefg1", 2, "Medium"},
		{"Abcdefg1", 3, "Strong"},
		{"Abcdefg1!", 4, "Very strong"},
		{"ab c", 1, "Weak"},
		{"ñandú123", 3, "Strong"},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got := PasswordStrength(tt.password)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.label, StrengthLabel(got))
		})
	}
}

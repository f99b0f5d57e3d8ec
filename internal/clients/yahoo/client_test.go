package yahoo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriodFor(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{1, "5d"},
		{5, "5d"},
		{30, "1mo"},
		{31, "3mo"},
		{180, "6mo"},
		{200, "1y"},
		{400, "2y"},
		{2000, "max"},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, periodFor(tt.days), "days=%d", tt.days)
	}
}

package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUnit_Accepts(t *testing.T) {
	tests := []struct {
		name string
		unit Unit
		qty  string
		want bool
	}{
		{name: "count whole", unit: UnitCount, qty: "3", want: true},
		{name: "count fractional", unit: UnitCount, qty: "1.5", want: false},
		{name: "empty unit behaves as count", unit: "", qty: "0.5", want: false},
		{name: "weight grams", unit: UnitWeight, qty: "0.125", want: true},
		{name: "weight too fine", unit: UnitWeight, qty: "0.1255", want: false},
		{name: "length whole", unit: UnitLength, qty: "2", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.unit.Accepts(decimal.RequireFromString(tt.qty)))
		})
	}
}

func TestUnit_Valid(t *testing.T) {
	assert.True(t, UnitCount.Valid())
	assert.True(t, UnitWeight.Valid())
	assert.True(t, UnitLength.Valid())
	assert.False(t, Unit("box").Valid())
}

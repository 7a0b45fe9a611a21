package sale

import (
	"regexp"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSale() *Sale {
	return &Sale{
		Reference: "INV-20240131-154502-1A2B3C4D",
		Actor:     "cashier-1",
		CreatedAt: time.Date(2024, 1, 31, 15, 45, 2, 0, time.UTC),
		Lines: []Line{
			{ProductID: "p1", Name: "Widget", Quantity: dec("2"), CostPrice: dec("80"), SellingPrice: dec("100")},
			{ProductID: "rice", Name: "Rice", Quantity: dec("1.255"), CostPrice: dec("2.50"), SellingPrice: dec("3.99")},
		},
		SubTotal:        dec("205.01"),
		DiscountPercent: dec("10"),
		FinalTotal:      dec("184.51"),
		FinalCost:       dec("163.14"),
	}
}

func TestSale_Validate(t *testing.T) {
	require.NoError(t, testSale().Validate())

	tests := []struct {
		name   string
		mutate func(s *Sale)
	}{
		{name: "missing reference", mutate: func(s *Sale) { s.Reference = "" }},
		{name: "missing actor", mutate: func(s *Sale) { s.Actor = "" }},
		{name: "no lines", mutate: func(s *Sale) { s.Lines = nil }},
		{name: "zero quantity", mutate: func(s *Sale) { s.Lines[0].Quantity = decimal.Zero }},
		{name: "wrong subtotal", mutate: func(s *Sale) { s.SubTotal = dec("205.00") }},
		{name: "wrong final", mutate: func(s *Sale) { s.FinalTotal = dec("184.50") }},
		{name: "wrong cost", mutate: func(s *Sale) { s.FinalCost = dec("163") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSale()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSale_ValidateTotalsError(t *testing.T) {
	s := testSale()
	s.FinalTotal = dec("1")
	require.ErrorIs(t, s.Validate(), ErrInconsistentTotals)
}

func TestSale_DiscountAmount(t *testing.T) {
	assert.True(t, dec("20.50").Equal(testSale().DiscountAmount()))
}

func TestSale_Codec(t *testing.T) {
	want := testSale()

	e := &jx.Encoder{}
	want.Encode(e)
	raw := e.Bytes()
	assert.Contains(t, string(raw), `"finalTotal":"184.51"`)
	assert.Contains(t, string(raw), `"qty":"1.255"`)

	var got Sale
	require.NoError(t, got.Decode(jx.DecodeBytes(raw)))
	assert.Equal(t, want.Reference, got.Reference)
	assert.Equal(t, want.Actor, got.Actor)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Lines, 2)
	assert.True(t, want.Lines[1].Quantity.Equal(got.Lines[1].Quantity))
	assert.True(t, want.FinalTotal.Equal(got.FinalTotal))
	require.NoError(t, got.Validate())
}

func TestDecodeDecimal(t *testing.T) {
	for _, input := range []string{`"12.50"`, `12.50`} {
		v, err := DecodeDecimal(jx.DecodeStr(input))
		require.NoError(t, err, input)
		assert.True(t, dec("12.5").Equal(v), input)
	}

	_, err := DecodeDecimal(jx.DecodeStr(`true`))
	require.Error(t, err)
	_, err = DecodeDecimal(jx.DecodeStr(`"abc"`))
	require.Error(t, err)
}

func TestLine_DecodeSkipsUnknown(t *testing.T) {
	var l Line
	require.NoError(t, l.Decode(jx.DecodeStr(`{"productId":"p1","extra":{"a":[1,2]},"qty":3}`)))
	assert.Equal(t, "p1", l.ProductID)
	assert.True(t, dec("3").Equal(l.Quantity))
}

func TestTimeReferences(t *testing.T) {
	now := time.Date(2024, 1, 31, 15, 45, 2, 0, time.UTC)
	ref := TimeReferences{}.Next(now)
	assert.Regexp(t, regexp.MustCompile(`^INV-20240131-154502-[0-9A-F]{8}$`), ref)
	assert.NotEqual(t, ref, TimeReferences{}.Next(now))
}

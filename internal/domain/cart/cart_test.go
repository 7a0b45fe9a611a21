package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-checkout/internal/domain/product"
)

func newTestProduct(id string, price, cost string) product.Product {
	return product.Product{
		ID:           id,
		Name:         "Product " + id,
		Unit:         product.UnitCount,
		SellingPrice: decimal.RequireFromString(price),
		CostPrice:    decimal.RequireFromString(cost),
		ListPrice:    decimal.RequireFromString(price),
		Quantity:     decimal.NewFromInt(100),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

func TestCart_TotalsWithDiscount(t *testing.T) {
	tests := []struct {
		name     string
		p3Qty    string
		subtotal string
		discount string
		final    string
		cost     string
		profit   string
	}{
		{name: "five", p3Qty: "5", subtotal: "550", discount: "55.00", final: "495.00", cost: "435", profit: "60"},
		{name: "ten", p3Qty: "10", subtotal: "650", discount: "65.00", final: "585.00", cost: "510", profit: "75"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			require.NoError(t, c.AddItem(newTestProduct("p1", "100", "80"), dec("2")))
			require.NoError(t, c.AddItem(newTestProduct("p2", "250", "200"), dec("1")))
			require.NoError(t, c.AddItem(newTestProduct("p3", "20", "15"), dec(tt.p3Qty)))
			require.NoError(t, c.SetDiscount(dec("10")))

			totals := c.Totals()
			assertDecimal(t, tt.subtotal, totals.Subtotal)
			assertDecimal(t, tt.discount, totals.DiscountAmount)
			assertDecimal(t, tt.final, totals.FinalTotal)
			assertDecimal(t, tt.cost, totals.CostSubtotal)
			assertDecimal(t, tt.profit, totals.GrossProfit)
		})
	}
}

func TestCart_AddExistingIncrements(t *testing.T) {
	c := New()
	p := newTestProduct("p1", "10", "5")
	require.NoError(t, c.AddItem(p, dec("1")))

	// A later catalog edit does not change the open line's snapshot.
	p.SellingPrice = dec("99")
	require.NoError(t, c.AddItem(p, dec("2")))

	require.Equal(t, 1, c.Len())
	l, ok := c.Line("p1")
	require.True(t, ok)
	assertDecimal(t, "3", l.Quantity)
	assertDecimal(t, "10", l.SellingPrice)
	assertDecimal(t, "30", c.Totals().Subtotal)
}

func TestCart_AddItemRejectsInvalidQuantity(t *testing.T) {
	tests := []struct {
		name string
		unit product.Unit
		qty  string
	}{
		{name: "zero", unit: product.UnitCount, qty: "0"},
		{name: "negative", unit: product.UnitCount, qty: "-1"},
		{name: "fraction of count unit", unit: product.UnitCount, qty: "0.5"},
		{name: "weight finer than grams", unit: product.UnitWeight, qty: "0.0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			p := newTestProduct("p1", "10", "5")
			p.Unit = tt.unit

			err := c.AddItem(p, dec(tt.qty))
			require.ErrorIs(t, err, ErrInvalidQuantity)
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestCart_WeightedLineRounding(t *testing.T) {
	c := New()
	p := newTestProduct("rice", "3.99", "2.50")
	p.Unit = product.UnitWeight
	require.NoError(t, c.AddItem(p, dec("1.255")))

	// 1.255 * 3.99 = 5.00745 -> 5.01
	assertDecimal(t, "5.01", c.Totals().Subtotal)
	assertDecimal(t, "3.14", c.Totals().CostSubtotal)
}

func TestCart_UpdateQuantity(t *testing.T) {
	t.Run("overwrites", func(t *testing.T) {
		c := New()
		require.NoError(t, c.AddItem(newTestProduct("p1", "10", "5"), dec("1")))
		require.NoError(t, c.UpdateQuantity("p1", dec("4")))

		l, _ := c.Line("p1")
		assertDecimal(t, "4", l.Quantity)
		assertDecimal(t, "40", c.Totals().Subtotal)
	})

	t.Run("below one removes count line", func(t *testing.T) {
		c := New()
		require.NoError(t, c.AddItem(newTestProduct("p1", "10", "5"), dec("3")))
		require.NoError(t, c.UpdateQuantity("p1", dec("0")))

		assert.Equal(t, 0, c.Len())
		assert.True(t, c.Totals().Subtotal.IsZero())
	})

	t.Run("fractional unit keeps sub-one quantity", func(t *testing.T) {
		c := New()
		p := newTestProduct("cheese", "20", "10")
		p.Unit = product.UnitWeight
		require.NoError(t, c.AddItem(p, dec("1")))
		require.NoError(t, c.UpdateQuantity("cheese", dec("0.25")))

		l, ok := c.Line("cheese")
		require.True(t, ok)
		assertDecimal(t, "0.25", l.Quantity)
	})

	t.Run("unknown product", func(t *testing.T) {
		c := New()
		require.ErrorIs(t, c.UpdateQuantity("missing", dec("2")), ErrLineNotFound)
	})

	t.Run("fraction of count unit", func(t *testing.T) {
		c := New()
		require.NoError(t, c.AddItem(newTestProduct("p1", "10", "5"), dec("1")))
		require.ErrorIs(t, c.UpdateQuantity("p1", dec("2.5")), ErrInvalidQuantity)
	})
}

func TestCart_RemoveKeepsOrder(t *testing.T) {
	c := New()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.AddItem(newTestProduct(id, "1", "1"), dec("1")))
	}
	c.RemoveItem("b")
	c.RemoveItem("missing")

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].ProductID)
	assert.Equal(t, "c", lines[1].ProductID)
}

func TestCart_SetDiscountRange(t *testing.T) {
	c := New()
	require.ErrorIs(t, c.SetDiscount(dec("-1")), ErrDiscountOutOfRange)
	require.ErrorIs(t, c.SetDiscount(dec("100.01")), ErrDiscountOutOfRange)
	require.NoError(t, c.SetDiscount(dec("100")))
	require.NoError(t, c.SetDiscount(dec("0")))
}

func TestCart_SetDiscountPrecision(t *testing.T) {
	c := New()
	require.NoError(t, c.SetDiscount(dec("12.5")))
	require.NoError(t, c.SetDiscount(dec("12.50")))
	require.NoError(t, c.SetDiscount(dec("12.500")))

	require.ErrorIs(t, c.SetDiscount(dec("12.345")), ErrDiscountPrecision)
	require.ErrorIs(t, c.SetDiscount(dec("0.001")), ErrDiscountPrecision)
	assertDecimal(t, "12.5", c.Discount())
}

func TestCart_FullDiscount(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(newTestProduct("p1", "19.99", "10"), dec("1")))
	require.NoError(t, c.SetDiscount(dec("100")))

	assert.True(t, c.Totals().FinalTotal.IsZero())
	assertDecimal(t, "19.99", c.Totals().DiscountAmount)
	assertDecimal(t, "-10", c.Totals().GrossProfit)
}

func TestCart_Clear(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(newTestProduct("p1", "10", "5"), dec("1")))
	require.NoError(t, c.SetDiscount(dec("5")))
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Discount().IsZero())
	assert.True(t, c.Totals().FinalTotal.IsZero())
}

func TestFinalTotal_HalfCent(t *testing.T) {
	// 0.25 * (1 - 0.5) = 0.125 rounds away from zero.
	assertDecimal(t, "0.13", FinalTotal(dec("0.25"), dec("50")))
}

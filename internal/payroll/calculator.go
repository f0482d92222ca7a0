package payroll

import "github.com/shopspring/decimal"

// Calculator splits a gross amount into deductions, taxes and insurance.
type Calculator interface {
	Calculate(gross decimal.Decimal, employee Employee) Breakdown
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(gross decimal.Decimal, employee Employee) Breakdown

// Calculate implements Calculator.
func (f CalculatorFunc) Calculate(gross decimal.Decimal, employee Employee) Breakdown {
	return f(gross, employee)
}

// FlatRateCalculator applies fixed rates to the gross amount.
type FlatRateCalculator struct {
	DeductionRate decimal.Decimal
	TaxRate       decimal.Decimal
	InsuranceRate decimal.Decimal
}

// DefaultCalculator taxes 20% of gross with no deductions or insurance.
func DefaultCalculator() FlatRateCalculator {
	return FlatRateCalculator{
		DeductionRate: decimal.Zero,
		TaxRate:       decimal.NewFromFloat(0.20),
		InsuranceRate: decimal.Zero,
	}
}

// Calculate implements Calculator.
func (c FlatRateCalculator) Calculate(gross decimal.Decimal, _ Employee) Breakdown {
	return Breakdown{
		Deductions: gross.Mul(c.DeductionRate).Round(2),
		Taxes:      gross.Mul(c.TaxRate).Round(2),
		Insurance:  gross.Mul(c.InsuranceRate).Round(2),
	}
}

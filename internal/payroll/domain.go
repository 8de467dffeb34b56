package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a line item.
type Kind string

const (
	KindPerception Kind = "PERCEPCION"
	KindDeduction  Kind = "DEDUCCION"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPerception || k == KindDeduction
}

// MaxAmount is the largest accepted line item amount.
var MaxAmount = decimal.NewFromInt(999999)

// LineItem is one concept on an employee payroll record.
type LineItem struct {
	ConceptID string          `json:"concept_id"`
	Name      string          `json:"name"`
	Kind      Kind            `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
}

// Record is the payroll of one employee for one period. Totals are always derived
// from LineItems.
type Record struct {
	EmployeeID string     `json:"employee_id"`
	Period     string     `json:"period"`
	LineItems  []LineItem `json:"line_items"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// TotalPerceptions sums the PERCEPCION items.
func (r Record) TotalPerceptions() decimal.Decimal {
	return r.sum(KindPerception)
}

// TotalDeductions sums the DEDUCCION items.
func (r Record) TotalDeductions() decimal.Decimal {
	return r.sum(KindDeduction)
}

// NetPay is perceptions minus deductions.
func (r Record) NetPay() decimal.Decimal {
	return r.TotalPerceptions().Sub(r.TotalDeductions())
}

func (r Record) sum(kind Kind) decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.LineItems {
		if item.Kind == kind {
			total = total.Add(item.Amount)
		}
	}
	return total
}

// Summary is the JSON view of a record with its derived totals.
type Summary struct {
	Record
	TotalPerceptions decimal.Decimal `json:"total_perceptions"`
	TotalDeductions  decimal.Decimal `json:"total_deductions"`
	NetPay           decimal.Decimal `json:"net_pay"`
}

// Summarize snapshots the derived totals for presentation.
func (r Record) Summarize() Summary {
	return Summary{
		Record:           r,
		TotalPerceptions: r.TotalPerceptions(),
		TotalDeductions:  r.TotalDeductions(),
		NetPay:           r.NetPay(),
	}
}

// EmployeeFailure records an employee excluded from a report.
type EmployeeFailure struct {
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
	Err        error  `json:"-"`
}

// ReportTotals is the organisation wide reduction of net pay for a period.
type ReportTotals struct {
	Period              string            `json:"period"`
	ActiveEmployeeCount int               `json:"active_employee_count"`
	TotalNetPayroll     decimal.Decimal   `json:"total_net_payroll"`
	Failed              []EmployeeFailure `json:"failed,omitempty"`
}

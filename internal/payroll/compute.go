package payroll

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/nomina/internal/shared"
)

// NewLineItem builds a validated line item from raw input.
func NewLineItem(conceptID, name string, kind Kind, amount float64) (LineItem, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return LineItem{}, fmt.Errorf("payroll: line item %q amount: %w", name, shared.ErrInvalidAmount)
	}
	item := LineItem{
		ConceptID: strings.TrimSpace(conceptID),
		Name:      strings.TrimSpace(name),
		Kind:      Kind(strings.ToUpper(strings.TrimSpace(string(kind)))),
		Amount:    decimal.NewFromFloat(amount).Round(2),
	}
	if err := validateLineItem(item); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// ValidateLineItems checks kinds and amount bounds of every item.
func ValidateLineItems(items []LineItem) error {
	for _, item := range items {
		if err := validateLineItem(item); err != nil {
			return err
		}
	}
	return nil
}

func validateLineItem(item LineItem) error {
	if !item.Kind.Valid() {
		return fmt.Errorf("payroll: line item %q kind %q: %w", item.Name, item.Kind, shared.ErrInvalidKind)
	}
	if item.Amount.IsNegative() || item.Amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("payroll: line item %q amount %s: %w", item.Name, item.Amount, shared.ErrInvalidAmount)
	}
	return nil
}

// ComputeRecord assembles a record over a private copy of items.
func ComputeRecord(employeeID, period string, items []LineItem) Record {
	cp := make([]LineItem, len(items))
	copy(cp, items)
	return Record{EmployeeID: employeeID, Period: period, LineItems: cp}
}

var defaultConcepts = []struct {
	name string
	kind Kind
}{
	{"Sueldo Base", KindPerception},
	{"Gratificación", KindPerception},
	{"Despensa", KindPerception},
	{"ISR", KindDeduction},
}

// DefaultLineItems is the editable zero baseline offered when no record is stored.
func DefaultLineItems() []LineItem {
	items := make([]LineItem, len(defaultConcepts))
	for i, c := range defaultConcepts {
		items[i] = LineItem{
			ConceptID: fmt.Sprintf("concepto-%d", i),
			Name:      c.name,
			Kind:      c.kind,
			Amount:    decimal.Zero,
		}
	}
	return items
}

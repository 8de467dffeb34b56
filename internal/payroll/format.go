package payroll

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ReportLocale is the locale used for report text.
var ReportLocale = language.MustParse("es-MX")

// FormatAmount renders amount with two decimals and locale grouping, prefixed by "$".
// Digits come from the decimal itself, so totals of any size keep full precision.
func FormatAmount(tag language.Tag, amount decimal.Decimal) string {
	amount = amount.Round(2)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	group, point := separators(message.NewPrinter(tag))
	whole, frac, _ := strings.Cut(amount.StringFixed(2), ".")
	return sign + "$" + groupDigits(whole, group) + point + frac
}

// separators reads the grouping and decimal symbols the locale prints.
func separators(p *message.Printer) (group, point string) {
	grouped := p.Sprint(number.Decimal(10000))
	group = strings.TrimSuffix(strings.TrimPrefix(grouped, "10"), "000")
	fraction := p.Sprint(number.Decimal(1.5, number.Scale(1)))
	point = strings.TrimSuffix(strings.TrimPrefix(fraction, "1"), "5")
	if point == "" {
		point = "."
	}
	return group, point
}

func groupDigits(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Summary renders a one line description of the totals.
func (t ReportTotals) Summary(tag language.Tag) string {
	p := message.NewPrinter(tag)
	text := p.Sprintf("Periodo %s: %d empleados activos, nómina total %s",
		t.Period, t.ActiveEmployeeCount, FormatAmount(tag, t.TotalNetPayroll))
	if n := len(t.Failed); n > 0 {
		text += p.Sprintf(" (%d excluidos)", n)
	}
	return text
}

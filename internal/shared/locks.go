package shared

import "fmt"

// PayrollLockKey builds redis keys guarding a single employee/period payroll record.
func PayrollLockKey(employeeID, period string) string {
	return fmt.Sprintf("payroll:record:%s:%s:lock", employeeID, period)
}

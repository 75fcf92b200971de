package lifecycle

import (
	"fmt"
	"time"
)

// EstimatedDeliveryDate adds businessDays to created, skipping Saturdays and
// Sundays.
func EstimatedDeliveryDate(created time.Time, businessDays int) time.Time {
	d := created
	for added := 0; added < businessDays; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return d
}

// FormatAmount renders minor currency units as "$ 12.34".
func FormatAmount(minor int64) string {
	return fmt.Sprintf("$ %.2f", float64(minor)/100)
}

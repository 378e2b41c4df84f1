package handler

import (
	"fmt"
	"strconv"
	"time"
)

// centsToAmount переводит сумму из центов в денежные единицы для JSON-ответов.
func centsToAmount(cents int64) float64 {
	return float64(cents) / 100
}

// formatUSD форматирует сумму в центах как доллары с разделением тысяч: $1,234.56.
func formatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	dollars := strconv.FormatInt(cents/100, 10)

	grouped := make([]byte, 0, len(dollars)+len(dollars)/3)
	for i, ch := range []byte(dollars) {
		if i > 0 && (len(dollars)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, ch)
	}

	return fmt.Sprintf("%s$%s.%02d", sign, grouped, cents%100)
}

// formatDateTime форматирует дату для сообщений об ошибках.
func formatDateTime(t time.Time) string {
	return t.Format("Jan 2, 2006, 3:04:05 PM")
}

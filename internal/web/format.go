package web

import "strconv"

// formatMajor renders minor currency units as a decimal amount.
func formatMajor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	cents := minor % 100
	pad := ""
	if cents < 10 {
		pad = "0"
	}
	return sign + strconv.FormatInt(minor/100, 10) + "." + pad + strconv.FormatInt(cents, 10)
}

package cli

import (
	"strconv"
	"strings"
)

// formatElapsed renders seconds with three significant digits. Exponents
// below -4 or above 1 use scientific notation; fixed notation always keeps
// one digit after the point, so 2 prints as "2.0" and 123.4 as "1.23e+02".
func formatElapsed(sec float64) string {
	if sec == 0 {
		return "0.0"
	}

	sci := strconv.FormatFloat(sec, 'e', 2, 64)
	mant, expStr, _ := strings.Cut(sci, "e")
	exp, err := strconv.Atoi(expStr)
	if err != nil {
		return sci
	}

	if exp < -4 || exp > 1 {
		return trimFraction(mant) + "e" + expStr
	}

	rounded, err := strconv.ParseFloat(sci, 64)
	if err != nil {
		return sci
	}
	fixed := trimFraction(strconv.FormatFloat(rounded, 'f', 2-exp, 64))
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}

// trimFraction drops trailing zeros after the decimal point, and the point
// itself when nothing is left after it.
func trimFraction(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

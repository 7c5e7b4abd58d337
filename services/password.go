package services

// MinPasswordStrength is the lowest score Register accepts
const MinPasswordStrength = 2

// PasswordStrength scores a password from 0 to 4, one point each for a
// length of at least 8, an upper-case letter, a digit and a symbol
func PasswordStrength(password string) int {
	var upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case !(r >= 'a' && r <= 'z'):
			symbol = true
		}
	}

	score := 0
	for _, ok := range []bool{len([]rune(password)) >= 8, upper, digit, symbol} {
		if ok {
			score++
		}
	}
	return score
}

// StrengthLabel names a PasswordStrength score
func StrengthLabel(score int) string {
	switch {
	case score <= 0:
		return ""
	case score == 1:
		return "Weak"
	case score == 2:
		return "Medium"
	case score == 3:
		return "Strong"
	default:
		return "Very strong"
	}
}

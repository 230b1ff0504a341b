package rules

func validOperator(op string) bool {
	switch op {
	case ">", ">=", "<", "<=":
		return true
	}
	return false
}

// compareThreshold applies op exactly, with no tolerance band.
func compareThreshold(value, threshold float64, op string) bool {
	switch op {
	case ">=":
		return value >= threshold
	case ">":
		return value > threshold
	case "<=":
		return value <= threshold
	case "<":
		return value < threshold
	default:
		return false
	}
}

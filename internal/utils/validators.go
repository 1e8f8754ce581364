package utils

import "unicode"

// IsValidForceID checks that a force ID is exactly 9 digits.
func IsValidForceID(id string) bool {
	if len(id) != 9 {
		return false
	}
	for _, r := range id {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// CountWords counts whitespace-delimited tokens. A string containing only
// whitespace counts as zero words.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}

package types

import (
	"strconv"
	"strings"
	"unicode"
)

// CompareQuestionIDs orders question ids by their non-numeric prefix and then
// by the trailing number, so Q2 sorts before Q10. Ids without a trailing
// number compare as plain strings.
func CompareQuestionIDs(a, b string) int {
	pa, na, okA := splitNumericSuffix(a)
	pb, nb, okB := splitNumericSuffix(b)
	if okA && okB && pa == pb {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
	}
	return strings.Compare(a, b)
}

// CompareTaskKeys orders keys by question id, then student id.
func CompareTaskKeys(a, b TaskKey) int {
	if c := CompareQuestionIDs(a.QuestionID, b.QuestionID); c != 0 {
		return c
	}
	return strings.Compare(a.StudentID, b.StudentID)
}

func splitNumericSuffix(s string) (string, int, bool) {
	i := len(s)
	for i > 0 && unicode.IsDigit(rune(s[i-1])) {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}

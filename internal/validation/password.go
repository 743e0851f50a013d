package validation

import (
	_ "embed"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	// maxSimilarity is the highest similarity ratio tolerated between a
	// password and the user's attributes.
	maxSimilarity = 0.7
)

//go:embed common_passwords.txt
var commonPasswordsRaw string

var commonPasswords = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(commonPasswordsRaw, "\n") {
		if p := strings.TrimSpace(line); p != "" {
			set[strings.ToLower(p)] = struct{}{}
		}
	}
	return set
}()

// checkPassword applies the password policy and returns the message keys of
// every rule the password breaks, in a fixed order: similarity, length,
// common password, numeric only. Only the first similar attribute is
// reported, username before email.
func checkPassword(password, username, email string) []string {
	var keys []string
	switch {
	case tooSimilar(password, username):
		keys = append(keys, MsgPasswordSimilar)
	case tooSimilar(password, email):
		keys = append(keys, MsgPasswordSimilarEmail)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		keys = append(keys, MsgPasswordShort)
	}
	if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
		keys = append(keys, MsgPasswordCommon)
	}
	if isNumeric(password) {
		keys = append(keys, MsgPasswordNumeric)
	}
	return keys
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// tooSimilar compares the password with attr as a whole and with each of its
// word parts, so "alice@example.com" also yields "alice", "example" and
// "com".
func tooSimilar(password, attr string) bool {
	attr = strings.ToLower(attr)
	if attr == "" {
		return false
	}
	pw := strings.ToLower(password)
	for _, part := range append(strings.FieldsFunc(attr, isSeparator), attr) {
		if similarity(pw, part) >= maxSimilarity {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// similarity returns 2*M/T where M is the length of the longest common
// subsequence of a and b and T their combined length.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(total)
}

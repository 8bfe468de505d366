package candidate

import (
	"strings"
	"unicode"
)

const (
	maskRune = '*'
	// How many leading characters of the email local part or the phone
	// number stay visible in masked views.
	maskKeep = 2
)

// MaskEmail returns a display-safe copy of an email address: the first
// characters of the local part are kept, the rest of the local part is
// replaced with the mask character and the domain stays intact. The
// result has the same length as the input.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return maskTail(email, maskKeep)
	}
	return maskTail(email[:at], maskKeep) + email[at:]
}

// MaskPhone masks a phone number keeping the leading characters and all
// separator characters, so the familiar shape (and length) of the
// number is preserved while the digits are hidden.
func MaskPhone(phone string) string {
	runes := []rune(phone)
	kept := 0
	for i, r := range runes {
		if !unicode.IsDigit(r) {
			continue
		}
		if kept < maskKeep {
			kept++
			continue
		}
		runes[i] = maskRune
	}
	return string(runes)
}

// MaskedSummary returns the record's contact fields in masked form for
// logging and display surfaces. The source of truth is never mutated.
func (r *Record) MaskedSummary() map[string]string {
	return map[string]string{
		string(FieldFullName): r.FullName,
		string(FieldEmail):    MaskEmail(r.Email),
		string(FieldPhone):    MaskPhone(r.Phone),
	}
}

func maskTail(s string, keep int) string {
	runes := []rune(s)
	for i := range runes {
		if i >= keep {
			runes[i] = maskRune
		}
	}
	return string(runes)
}

package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var phoneDigitsRe = regexp.MustCompile(`^7\d{10}$`)

// PhoneDigits оставляет только цифры.
func PhoneDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone цифры номера с кодом 7; ведущая 8 считается префиксом 7.
func NormalizePhone(raw string) string {
	digits := PhoneDigits(raw)
	if digits == "" {
		return ""
	}
	switch digits[0] {
	case '7':
	case '8':
		digits = "7" + digits[1:]
	default:
		digits = "7" + digits
	}
	if len(digits) > 11 {
		digits = digits[:11]
	}
	return digits
}

// ValidPhone: после удаления нецифр остаётся 7 и ещё десять цифр.
func ValidPhone(raw string) bool {
	return phoneDigitsRe.MatchString(PhoneDigits(raw))
}

// FormatPhone маска +7 XXX XXX XX XX для неполного ввода тоже, пустой ввод даёт "+7".
// Повторное форматирование не меняет результат.
func FormatPhone(raw string) string {
	digits := NormalizePhone(raw)
	if digits == "" {
		return "+7"
	}

	rest := digits[1:]
	out := "+7"
	for _, size := range []int{3, 3, 2, 2} {
		if rest == "" {
			break
		}
		n := size
		if len(rest) < n {
			n = len(rest)
		}
		out += " " + rest[:n]
		rest = rest[n:]
	}
	return out
}

// CapitalizeName делает заглавной первую букву каждого слова.
func CapitalizeName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	startOfWord := true
	for len(raw) > 0 {
		r, size := utf8.DecodeRuneInString(raw)
		raw = raw[size:]
		if unicode.IsSpace(r) {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			r = unicode.ToUpper(r)
			startOfWord = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

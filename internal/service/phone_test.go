package service

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var maskRe = regexp.MustCompile(`^\+7( \d{1,3}){0,4}$`)

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "+7"},
		{"+", "+7"},
		{"7", "+7"},
		{"77", "+7 7"},
		{"7701", "+7 701"},
		{"77011", "+7 701 1"},
		{"77011234567", "+7 701 123 45 67"},
		{"87011234567", "+7 701 123 45 67"},
		{"+7 (701) 123-45-67", "+7 701 123 45 67"},
		{"770112345678999", "+7 701 123 45 67"},
		{"abc", "+7"},
		{"9161234567", "+7 916 123 45 67"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPhone(tt.in), "input %q", tt.in)
	}
}

func TestFormatPhoneProperties(t *testing.T) {
	inputs := []string{
		"", "1", "12", "+7 7", "8 (777) 1", "+7 701 123 45 67", "7-7-7-7-7-7-7-7-7-7-7-7",
		"телефон 8 701 000 00 00", "+7 701 123 45 6", "0000000000000", "+99", " 7 ",
	}
	for _, in := range inputs {
		once := FormatPhone(in)
		assert.Regexp(t, maskRe, once, "input %q", in)
		assert.Equal(t, once, FormatPhone(once), "idempotent for %q", in)
	}
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("+7 701 123 45 67"))
	assert.True(t, ValidPhone("77011234567"))
	assert.False(t, ValidPhone("+7 701 123 45 6"))
	assert.False(t, ValidPhone("87011234567"))
	assert.False(t, ValidPhone(""))

	// всё, что проходит валидацию, после очистки совпадает с ^7\d{10}$
	assert.Regexp(t, `^7\d{10}$`, PhoneDigits(FormatPhone("8 701 123 45 67")))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "", NormalizePhone("---"))
	assert.Equal(t, "77011234567", NormalizePhone("8 701 123 45 67"))
	assert.Equal(t, "7123", NormalizePhone("123"))
}

func TestCapitalizeName(t *testing.T) {
	assert.Equal(t, "Анна Иванова", CapitalizeName("анна иванова"))
	assert.Equal(t, "John  McDonald", CapitalizeName("john  mcDonald"))
	assert.Equal(t, "Ёлка ", CapitalizeName("ёлка "))
	assert.Equal(t, "", CapitalizeName(""))
}

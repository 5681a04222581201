package cnpj

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigits(t *testing.T) {
	assert.Equal(t, "00000000000191", Digits("00.000.000/0001-91"))
	assert.Equal(t, "123", Digits(" 1a2b3c "))
	assert.Equal(t, "", Digits("abc"))
}

func TestCompose(t *testing.T) {
	assert.Equal(t, "00000001000195", Compose("1", "1", "95"))
	assert.Equal(t, "12345678000512", Compose("12345678", "0005", "12"))
	// masked parts are cleaned first
	assert.Equal(t, "00000000000191", Compose("00.000.000", "0001", "91"))
}

func TestIsValid(t *testing.T) {
	valid := []string{
		"00000000000191",
		"00.000.000/0001-91",
		"11222333000181",
		"11.222.333/0001-81",
	}
	for _, s := range valid {
		assert.True(t, IsValid(s), s)
	}

	invalid := []string{
		"",
		"11222333000180",  // wrong second check digit
		"11222333000171",  // wrong first check digit
		"1122233300018",   // 13 digits
		"112223330001811", // 15 digits
		"11111111111111",  // all equal
		"00000000000000",  // all equal
	}
	for _, s := range invalid {
		assert.False(t, IsValid(s), s)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "11.222.333/0001-81", Format("11222333000181"))
	assert.Equal(t, "11.222.333/0001-81", Format("11.222.333/0001-81"))
	// not 14 digits: digits only, no mask
	assert.Equal(t, "123", Format("123"))
}

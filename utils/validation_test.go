package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Title    string  `json:"title" validate:"required,max=5"`
	Litres   float64 `json:"litresFilled" validate:"gt=0"`
	Currency string  `json:"currency" validate:"omitempty,oneof=ZAR USD"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&testPayload{Title: "ok", Litres: 1, Currency: "ZAR"}))
	})

	t.Run("reports json field names", func(t *testing.T) {
		err := ValidateStruct(&testPayload{Title: "too long", Litres: 0, Currency: "EUR"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "title must be at most 5", fields["title"])
		assert.Equal(t, "litresFilled must be greater than 0", fields["litresFilled"])
		assert.Equal(t, "currency must be one of: ZAR USD", fields["currency"])
		assert.Contains(t, err.Error(), "Validation failed: ")
	})

	t.Run("required", func(t *testing.T) {
		err := ValidateStruct(&testPayload{Litres: 2})
		assert.Equal(t, "title is required", GetValidationFields(err)["title"])
	})
}

func TestGetValidationFields_OtherError(t *testing.T) {
	assert.Nil(t, GetValidationFields(errors.New("plain")))
	assert.False(t, IsValidationError(errors.New("plain")))
}

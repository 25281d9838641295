package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleInput struct {
	Model    string  `validate:"required"`
	Tier     int     `validate:"gte=0"`
	Fraction float64 `validate:"gte=0,lte=1"`
	Role     string  `validate:"omitempty,oneof=user assistant system"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		err := ValidateStruct(sampleInput{Model: "gpt-4o", Tier: 1, Fraction: 0.5, Role: "user"})
		assert.NoError(t, err)
	})

	t.Run("collects field errors", func(t *testing.T) {
		err := ValidateStruct(sampleInput{Tier: -1, Fraction: 2, Role: "villain"})
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "Validation failed", verr.Error())

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "Model")
		assert.Contains(t, fields, "Tier")
		assert.Contains(t, fields, "Fraction")
		assert.Contains(t, fields, "Role")
	})

	t.Run("non-validation error passes through", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(errors.New("boom")))
	})
}

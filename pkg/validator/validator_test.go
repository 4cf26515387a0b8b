package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ward-api/pkg/errors"
)

type request struct {
	PatientID int64  `json:"patient_id" validate:"required,gt=0"`
	Name      string `json:"treatment_name" validate:"required,max=10"`
	Note      string `json:"note,omitempty"`
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, New().Validate(&request{PatientID: 1, Name: "X-ray"}))
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := New().Validate(&request{PatientID: -1})
	require.Error(t, err)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindValidation, appErr.Kind)
	assert.ElementsMatch(t, []errors.FieldError{
		{Field: "patient_id", Message: "must be greater than 0"},
		{Field: "treatment_name", Message: "is required"},
	}, appErr.Fields)
}

func TestValidate_MaxLength(t *testing.T) {
	err := New().Validate(&request{PatientID: 3, Name: "a very long treatment"})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "must be at most 10 characters", appErr.Fields[0].Message)
}

package shared

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name" validate:"required"`
	Kind string `json:"kind" validate:"omitempty,content_kind"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantErr     bool
		errContains string
	}{
		{name: "valid json", body: `{"name":"test","kind":"quiz"}`},
		{name: "invalid json", body: `{"name":"test",}`, wantErr: true, errContains: "invalid character"},
		{name: "empty body", body: "", wantErr: true, errContains: "EOF"},
		{name: "unknown field", body: `{"name":"test","age":3}`, wantErr: true, errContains: "unknown field"},
		{name: "trailing data", body: `{"name":"a"}{"name":"b"}`, wantErr: true, errContains: "unexpected data"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tc.body))

			var got sample
			err := DecodeJSON(req, &got)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sample{Name: "test", Kind: "quiz"}, got)
		})
	}
}

type selfValidating struct{ ok bool }

func (s selfValidating) Validate() error {
	if !s.ok {
		return domain.ErrValidation
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRequest(&sample{Name: "a", Kind: "flashcards"}))
	assert.NoError(t, ValidateRequest(&sample{Name: "a"}))

	err := ValidateRequest(&sample{Name: "a", Kind: "essay"})
	require.ErrorIs(t, err, domain.ErrValidation)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "content_kind", verrs[0].Tag())

	assert.ErrorIs(t, ValidateRequest(&sample{}), domain.ErrValidation)

	assert.NoError(t, ValidateRequest(selfValidating{ok: true}))
	assert.ErrorIs(t, ValidateRequest(selfValidating{}), domain.ErrValidation)
}

func TestValidate_ItemKind(t *testing.T) {
	t.Parallel()

	type req struct {
		Kind string `validate:"item_kind"`
	}
	assert.NoError(t, Validate.Struct(req{Kind: string(domain.ItemKindFlashcard)}))
	assert.NoError(t, Validate.Struct(req{Kind: string(domain.ItemKindQuizQuestion)}))
	assert.Error(t, Validate.Struct(req{Kind: "card"}))
}

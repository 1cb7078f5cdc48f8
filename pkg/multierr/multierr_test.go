package multierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		want         string
		wantContains []string
	}{
		{
			name: "empty",
			want: "<nil>",
		},
		{
			name: "single",
			errs: []error{errors.New("boom")},
			want: "boom",
		},
		{
			name:         "multiple",
			errs:         []error{errors.New("error A"), errors.New("error B")},
			wantContains: []string{"2 errors", "error A", "error B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			e := Error(tt.errs)
			if tt.want != "" {
				assert.Equal(tt.want, e.Error())
				return
			}
			for _, contains := range tt.wantContains {
				assert.Contains(e.Error(), contains)
			}
		})
	}
}

func TestError_Append(t *testing.T) {
	assert := assert.New(t)

	var e Error
	e.Append(nil)
	assert.Nil(e.ErrOrNil())

	e.Append(errors.New("first"))
	assert.EqualError(e.ErrOrNil(), "first")

	e.Append(errors.New("second"))
	assert.Len(e, 2)
}

func TestError_ErrOrNil(t *testing.T) {
	assert := assert.New(t)

	returnsNil := func() error {
		var e Error
		return e.ErrOrNil()
	}
	assert.NoError(returnsNil())

	single := errors.New("single")
	e := Error{single}
	assert.Same(single, e.ErrOrNil())
}

func TestError_Is(t *testing.T) {
	assert := assert.New(t)

	sentinel := errors.New("sentinel")
	e := Error{errors.New("other"), fmt.Errorf("wrapped: %w", sentinel)}
	assert.ErrorIs(e, sentinel)
	assert.NotErrorIs(e, errors.New("missing"))
}

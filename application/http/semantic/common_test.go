package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected Method
		wantErr  bool
	}{
		{desc: "upper", input: "GET", expected: MethodGet},
		{desc: "lower", input: "patch", expected: MethodPatch},
		{desc: "mixed", input: "OpTiOnS", expected: MethodOptions},
		{desc: "unknown", input: "BREW", wantErr: true},
		{desc: "empty", input: "", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			m, err := ParseMethod(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMethod)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, m)
		})
	}
}

func TestMethodAllowsBody(t *testing.T) {
	allowed := map[Method]bool{MethodPost: true, MethodPut: true, MethodPatch: true}

	for _, m := range Methods() {
		assert.Equal(t, allowed[m], m.AllowsBody(), string(m))
	}
}

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptgott/envelope/email"
)

func TestAddressFlag(t *testing.T) {
	var a addressFlag
	require.NoError(t, a.Set("Jane Doe <jane@example.com>, joe@example.com"))
	require.NoError(t, a.Set("frank@example.com"))

	assert.Equal(t, email.AddressList{
		{Address: "jane@example.com", Name: "Jane Doe"},
		{Address: "joe@example.com"},
		{Address: "frank@example.com"},
	}, a.list)
	assert.Equal(t, `"Jane Doe" <jane@example.com>, joe@example.com, frank@example.com`, a.String())

	assert.Error(t, a.Set("not an address"))
}

func TestParseBatch(t *testing.T) {
	testCases := []struct {
		description   string
		input         string
		expected      int
		shouldBeError bool
	}{
		{
			description: "sequence",
			input: `- a@example.com
- b@example.com: B`,
			expected: 2,
		},
		{
			description: "mapping",
			input: `0: a@example.com
b@example.com: B
c@example.com: C`,
			expected: 3,
		},
		{
			description:   "empty",
			input:         `[]`,
			shouldBeError: true,
		},
		{
			description:   "not yaml",
			input:         `{`,
			shouldBeError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			l, err := parseBatch(bytes.NewBufferString(tc.input))
			if (err != nil) != tc.shouldBeError {
				t.Fatalf(
					"%v: unexpected error status--wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}
			assert.Len(t, l, tc.expected)
		})
	}
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input StringArray
	}{
		{name: "plain values", input: StringArray{"student", "teacher"}},
		{name: "empty array", input: StringArray{}},
		{name: "value with comma", input: StringArray{"Smith, Jane", "admin"}},
		{name: "value with quotes", input: StringArray{`the "advanced" group`}},
		{name: "value with backslash", input: StringArray{`C:\exports`}},
		{name: "value with braces", input: StringArray{"{nested}", "plain"}},
		{name: "empty element", input: StringArray{"", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := tt.input.Value()
			require.NoError(t, err)

			var scanned StringArray
			require.NoError(t, scanned.Scan(value))
			assert.Equal(t, tt.input, scanned)
		})
	}
}

func TestStringArray_ScanDatabaseFormat(t *testing.T) {
	tests := []struct {
		name     string
		literal  string
		expected StringArray
	}{
		{name: "unquoted elements", literal: "{alpha,beta}", expected: StringArray{"alpha", "beta"}},
		{name: "empty array", literal: "{}", expected: StringArray{}},
		{name: "quoted element with comma", literal: `{"Smith, Jane",admin}`, expected: StringArray{"Smith, Jane", "admin"}},
		{name: "quoted element with escaped quote", literal: `{"say \"hi\""}`, expected: StringArray{`say "hi"`}},
		{name: "quoted element with escaped backslash", literal: `{"C:\\exports"}`, expected: StringArray{`C:\exports`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var scanned StringArray
			require.NoError(t, scanned.Scan(tt.literal))
			assert.Equal(t, tt.expected, scanned)
		})
	}
}

func TestStringArray_ScanRejectsMalformedLiteral(t *testing.T) {
	var scanned StringArray
	assert.Error(t, scanned.Scan("not an array"))
	assert.Error(t, scanned.Scan(`{"unterminated}`))
}

func TestStringArray_ScanNil(t *testing.T) {
	scanned := StringArray{"leftover"}
	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
}

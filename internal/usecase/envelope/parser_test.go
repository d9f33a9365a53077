package envelope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yinsen/internal/domain"
)

func TestParseWellFormed(t *testing.T) {
	env := Parse("[a]: x\n[b]: true\n[c]: ")

	assert.Equal(t, domain.Envelope{"a": "x", "b": true, "c": nil}, env)
}

func TestParseNoBrackets(t *testing.T) {
	env := Parse("just some prose without any keys")
	assert.Empty(t, env)
	assert.NotNil(t, env)
}

func TestParseBooleanCaseInsensitive(t *testing.T) {
	env := Parse("[x]: TRUE [y]: False [z]: truer")
	assert.Equal(t, true, env["x"])
	assert.Equal(t, false, env["y"])
	assert.Equal(t, "truer", env["z"])
}

func TestParseDiscardsLeadingText(t *testing.T) {
	env := Parse("Sure! Here you go.\n[response_to_user]: Hello")
	assert.Equal(t, domain.Envelope{"response_to_user": "Hello"}, env)
}

func TestParseMultilineValue(t *testing.T) {
	env := Parse("[detailed_response]: line one\nline two\n\n[tool_usage_flag]: false")
	assert.Equal(t, "line one\nline two", env["detailed_response"])
	assert.Equal(t, false, env["tool_usage_flag"])
}

func TestParseMalformedBracketIsValueText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"unterminated", "[a]: see [note", "see [note"},
		{"missing colon", "[a]: list [1] item", "list [1] item"},
		{"non identifier", "[a]: x [not a key]: y", "x [not a key]: y"},
		{"empty brackets", "[a]: x []: y", "x []: y"},
		{"trailing open bracket", "[a]: x [", "x ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Parse(tt.in)
			require.Len(t, env, 1)
			assert.Equal(t, tt.want, env["a"])
		})
	}
}

func TestParseDuplicateKeyLastWins(t *testing.T) {
	env := Parse("[k]: first\n[k]: second")
	assert.Equal(t, "second", env["k"])
}

func TestParseAdjacentKeys(t *testing.T) {
	env := Parse("[a]:[b]:value")
	assert.Nil(t, env["a"])
	assert.True(t, env.Has("a"))
	assert.Equal(t, "value", env["b"])
}

func TestParseIdempotent(t *testing.T) {
	text := "[response_to_user]: hi\n[invoke_another_agent_flag]: true\n[invoke_agent_name]: finance"
	assert.Equal(t, Parse(text), Parse(text))
}

func TestParseEnvelopeHelpers(t *testing.T) {
	env := Parse("[invoke_another_agent_flag]: true\n[invoke_agent_name]: \n[tool_usage_flag]: true")
	assert.False(t, env.WantsSwitch(), "switch needs a non-empty target name")
	assert.True(t, env.WantsTool())
	assert.Equal(t, "true", env.String(domain.KeyToolUsageFlag))
	assert.Equal(t, "", env.String(domain.KeyDetailedResponse))
}

func TestDecodeToolDocument(t *testing.T) {
	doc, err := DecodeToolDocument(`{"tool":"expense_manager","instructions":{"action":"log_expense","date":"05/04/2025","amount":20,"category":"food","currency":"USD"}}`)
	require.NoError(t, err)

	assert.Equal(t, "expense_manager", doc.Tool)
	assert.Equal(t, "log_expense", doc.Action())
	assert.Equal(t, "20", doc.Instructions.String("amount"))
	assert.False(t, doc.HasError())
}

func TestDecodeToolDocumentFenced(t *testing.T) {
	doc, err := DecodeToolDocument("```json\n{\"tool\":\"calendar\",\"instructions\":{\"action\":\"view\",\"date\":\"01/01/2025\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "calendar", doc.Tool)
	assert.Equal(t, "view", doc.Action())
}

func TestDecodeToolDocumentErrorField(t *testing.T) {
	doc, err := DecodeToolDocument(`{"error":"missing amount","details":"the user did not say how much"}`)
	require.NoError(t, err)
	assert.True(t, doc.HasError())
	assert.Equal(t, "missing amount", doc.ErrorText())
	assert.Equal(t, "the user did not say how much", doc.DetailsText())
}

func TestDecodeToolDocumentNullError(t *testing.T) {
	doc, err := DecodeToolDocument(`{"error":null,"details":"no tool fits"}`)
	require.NoError(t, err)
	assert.True(t, doc.HasError())
	assert.Equal(t, "no tool fits", doc.DetailsText())
}

func TestDecodeToolDocumentEmpty(t *testing.T) {
	doc, err := DecodeToolDocument("   ")
	require.NoError(t, err)
	assert.Empty(t, doc.Tool)
	assert.False(t, doc.HasError())
}

func TestDecodeToolDocumentMalformed(t *testing.T) {
	for _, in := range []string{
		"[tool]: calendar",
		`{"tool": "calendar"`,
		`"just a string"`,
		`{"tool":"email"} trailing`,
	} {
		_, err := DecodeToolDocument(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, domain.ErrMalformedToolResponse), in)
	}
}

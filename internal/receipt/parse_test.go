package receipt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
)

const stopAndShop = `{"is_valid":true,"date":"2021-03-26","currency":"USD","vendorName":"STOP&SHOP","items":[` +
	`{"name":"SB BGICE CB 10LB","qty":3,"cost":2.99},` +
	`{"name":"HALLMARK CARD","qty":1,"cost":2.00},` +
	`{"name":"HALLMARK CARD","qty":1,"cost":3.79},` +
	`{"name":"HALLMARK CARD","qty":1,"cost":0.99},` +
	`{"name":"CHARITY","qty":1,"cost":1}],"tax":0.42,"total":17.17}`

func TestParse_FencedMatchesUnfenced(t *testing.T) {
	plain, err := Parse(stopAndShop)
	require.NoError(t, err)

	for _, fenced := range []string{
		"```json\n" + stopAndShop + "\n```",
		"```\n\n" + stopAndShop + "\n```\n",
		"```JSON " + stopAndShop + " ```",
	} {
		got, err := Parse(fenced)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
	assert.IsType(t, Valid{}, plain)
}

func TestParse_InvalidDefaultsReason(t *testing.T) {
	res, err := Parse(`{"is_valid": false}`)
	require.NoError(t, err)
	assert.Equal(t, Invalid{Reason: DefaultInvalidReason}, res)
}

func TestParse_InvalidKeepsReason(t *testing.T) {
	res, err := Parse("```json\n{\"is_valid\":false,\"error\":\"Image unreadable\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, Invalid{Reason: "Image unreadable"}, res)
}

func TestParse_FallsBackToFirstObject(t *testing.T) {
	content := `Sure! Here is the receipt: {"is_valid":false,"error":"Not a receipt {really}"} Let me know.`

	res, err := Parse(content)
	require.NoError(t, err)
	assert.Equal(t, Invalid{Reason: "Not a receipt {really}"}, res)
}

func TestParse_NoObjectIsInvalid(t *testing.T) {
	res, err := Parse("I cannot read this image.")
	require.NoError(t, err)
	assert.Equal(t, Invalid{Reason: DefaultInvalidReason}, res)
}

func TestParse_MalformedObjectIsParseError(t *testing.T) {
	_, err := Parse("```json\n{\"is_valid\": true, \"total\": }\n```")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrParse)
}

func TestParse_NonObjectIsParseError(t *testing.T) {
	_, err := Parse(`[1,2,3]`)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrParse)
}

func TestParse_MissingTotal(t *testing.T) {
	_, err := Parse(`{"is_valid":true,"date":"2021-03-26","currency":"USD","vendorName":"X","items":[{"name":"a","cost":1}],"tax":0}`)
	require.Error(t, err)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, MissingField, fe.Kind)
	assert.Equal(t, "total", fe.Field)
	assert.Equal(t, "Missing required field: total", err.Error())
	assert.ErrorIs(t, err, apperr.ErrParse)
}

func TestParse_RequiredFieldOrder(t *testing.T) {
	_, err := Parse(`{"is_valid":true,"vendorName":"","items":[]}`)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "date", fe.Field)
}

func TestParse_EmptyItems(t *testing.T) {
	_, err := Parse(`{"is_valid":true,"date":"2021-03-26","currency":"USD","vendorName":"X","items":[],"tax":0,"total":1}`)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, EmptyItems, fe.Kind)
	assert.Equal(t, "Items array is empty or invalid", err.Error())
}

func TestParse_NonNumericTax(t *testing.T) {
	_, err := Parse(`{"is_valid":true,"date":"2021-03-26","currency":"USD","vendorName":"X","items":[{"name":"a","cost":1}],"tax":"0.42","total":1}`)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, InvalidField, fe.Kind)
	assert.Equal(t, "tax", fe.Field)
	assert.Equal(t, `Invalid tax: "0.42"`, err.Error())
}

func TestParse_AbsentTaxIsInvalidField(t *testing.T) {
	_, err := Parse(`{"is_valid":true,"date":"2021-03-26","currency":"USD","vendorName":"X","items":[{"name":"a","cost":1}],"total":1}`)
	assert.EqualError(t, err, "Invalid tax: undefined")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n\n{\"a\":1}\n```"))
	assert.Equal(t, "{\n\"a\":1\n}", StripFences("{\n\n\"a\":1\n}"))
	assert.Equal(t, `{"name":"A`+"```"+`B"}`, StripFences("```json\n{\"name\":\"A```B\"}\n```"))
}

func TestParse_BackticksInsideValuesSurvive(t *testing.T) {
	content := "```json\n" +
		`{"is_valid":true,"date":"2021-03-26","currency":"USD","vendorName":"X",` +
		`"items":[{"name":"TEE `+"```"+` SHIRT","qty":1,"cost":5}],"tax":0,"total":5}` +
		"\n```"
	res, err := Parse(content)
	require.NoError(t, err)
	require.IsType(t, Valid{}, res)

	data, err := Decode(res.(Valid).Document)
	require.NoError(t, err)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "TEE ``` SHIRT", data.Items[0].Name)
}

func TestFirstObject(t *testing.T) {
	obj, ok := FirstObject(`noise } { "a": {"b": "}"} } tail {"c":1}`)
	require.True(t, ok)
	assert.Equal(t, `{ "a": {"b": "}"} }`, obj)

	obj, ok = FirstObject(`{ unterminated {"x":1}`)
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, obj)

	_, ok = FirstObject("nothing here")
	assert.False(t, ok)
}

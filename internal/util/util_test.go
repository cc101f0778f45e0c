package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	City  string `json:"city" description:"City name"`
	Days  *int   `json:"days" description:"Optional horizon"`
	Units string `json:"units,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "days")
	assert.Contains(t, props, "units")
	assert.Equal(t, []string{"city"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []any{"x"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"x": 5}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = ValidateParameters(map[string]any{"x": "nope"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")

	// schemas produced by CreateSchema use []string
	err = ValidateParameters(map[string]any{}, CreateSchema(sampleArgs{}))
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)
}

func TestValidateParameters_Enum(t *testing.T) {
	type args struct {
		Units string `json:"units" enum:"metric,imperial"`
	}
	schema := CreateSchema(args{})
	assert.NoError(t, ValidateParameters(map[string]any{"units": "metric"}, schema))

	err := ValidateParameters(map[string]any{"units": "kelvin"}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "must be one of metric, imperial", vErr.Message)
}

func TestPlainInputField(t *testing.T) {
	field, ok := PlainInputField(CreateSchema(sampleArgs{}))
	assert.True(t, ok)
	assert.Equal(t, "city", field)

	type two struct {
		A string `json:"a"`
		B string `json:"b"`
	}
	_, ok = PlainInputField(CreateSchema(two{}))
	assert.False(t, ok)

	type count struct {
		N int `json:"n"`
	}
	_, ok = PlainInputField(CreateSchema(count{}))
	assert.False(t, ok)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Q: {{ .Query }} <{{ join \"|\" .Tags }}>", map[string]any{"Query": "a & b", "Tags": []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, "Q: a & b <x|y>", out)

	out, err = RenderTemplate("{{ range $i, $s := .Items }}{{ inc $i }}:{{ truncate 5 $s }} {{ end }}", map[string]any{"Items": []string{"short", "much longer text"}})
	require.NoError(t, err)
	assert.Equal(t, "1:short 2:mu... ", out)

	plain, err := RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", plain)

	_, err = RenderTemplate("{{ .Broken", nil)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hello", Truncate("hello", 0))
	assert.Equal(t, "he...", Truncate("hello world", 5))
	assert.Equal(t, "äö", Truncate("äöü", 2))
}

func TestNormalizeQueryAndHash(t *testing.T) {
	assert.Equal(t, "what time is it", NormalizeQuery("  What   TIME is\tit "))
	assert.Equal(t, QueryHash("what time is it"), QueryHash("What time  is it"))
	assert.NotEqual(t, QueryHash("a"), QueryHash("b"))
}

func TestDedupeStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, DedupeStrings([]string{"a", " ", "b", "a", "c", "b"}))
}

package yamlwrapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	type testStruct struct {
		Field1 string   `json:"field1"`
		Field2 int      `json:"field2"`
		Field3 []string `json:"field3"`
		Field4 bool     `json:"field4"`
	}

	var dest testStruct
	err := Unmarshal([]byte("field1: test\n"+
		"field2: 456\n"+
		"field3: [a, b]\n"+
		"field4: yes\n"), &dest)
	require.NoError(t, err)

	require.Equal(t, testStruct{
		Field1: "test",
		Field2: 456,
		Field3: []string{"a", "b"},
		Field4: true,
	}, dest)
}

func TestUnmarshalNested(t *testing.T) {
	var dest interface{}
	err := Unmarshal([]byte("a:\n  b: [{c: 1}]\n"), &dest)
	require.NoError(t, err)

	require.Equal(t, map[string]interface{}{
		"a": map[string]interface{}{
			"b": []interface{}{
				map[string]interface{}{"c": float64(1)},
			},
		},
	}, dest)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		buf  string
		err  string
	}{
		{
			"integer key",
			"1: value\n",
			"integer keys are not supported (1)",
		},
		{
			"unknown field",
			"field1: test\nunknownField: value\n",
			"json: unknown field \"unknownField\"",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var dest struct {
				Field1 string `json:"field1"`
			}
			err := Unmarshal([]byte(ca.buf), &dest)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestUnmarshalDuplicateKey(t *testing.T) {
	err := Unmarshal([]byte("key: value1\nkey: value2\n"), &map[string]string{})
	require.Error(t, err)
}

func TestUnmarshalEmpty(t *testing.T) {
	var dest struct {
		Field1 string `json:"field1"`
	}
	err := Unmarshal([]byte(``), &dest)
	require.NoError(t, err)
	require.Equal(t, "", dest.Field1)
}

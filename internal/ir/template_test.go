package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateValueRoundTripThroughJSON(t *testing.T) {
	want := rowTemplate()

	data, err := MarshalCanonical(TemplateValue(want))
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"row","roots":[{"attrs":{"gap":4},"children":[{"kind":"label"},{"kind":"label"}],"kind":"panel"}]}`,
		string(data))

	v, err := UnmarshalValue(data)
	require.NoError(t, err)
	got, err := TemplateFromValue(v)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTemplateFromValueErrors(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"not a map", Text("row"), "want map"},
		{"no name", Map{"roots": List{}}, "missing name"},
		{"no roots", Map{"name": Text("row")}, "missing roots"},
		{"root without kind", Map{"name": Text("row"), "roots": List{Map{}}}, "root 0: missing kind"},
		{"bad children", Map{"name": Text("row"), "roots": List{
			Map{"kind": Text("panel"), "children": Text("x")},
		}}, "children: want list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TemplateFromValue(tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func constant(data map[string]any) Parser {
	return Func(func(string, string) Result {
		return Result{Data: data}
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("table", constant(map[string]any{"kind": "table"}))
	r.Register("default", constant(map[string]any{"kind": "default"}))

	require.Equal(t, []string{"default", "table"}, r.Keys())

	p, err := r.Resolve("table")
	require.NoError(t, err)
	require.Equal(t, "table", p.Parse("", "").Data["kind"])

	_, err = r.Resolve("boletim")
	require.ErrorIs(t, err, ErrParserNotFound)
	require.Contains(t, err.Error(), `"boletim"`)
}

func TestRegistryPanics(t *testing.T) {
	r := NewRegistry()
	r.Register("default", constant(nil))

	require.Panics(t, func() { r.Register("default", constant(nil)) })
	require.Panics(t, func() { r.Register("", constant(nil)) })
	require.Panics(t, func() { r.Register("empty", nil) })
}

func TestResultItems(t *testing.T) {
	testCases := []struct {
		name   string
		data   map[string]any
		expect []any
	}{
		{
			name:   "no items",
			data:   map[string]any{"titulo": "x"},
			expect: nil,
		},
		{
			name:   "any slice",
			data:   map[string]any{ItemsKey: []any{"a", "b"}},
			expect: []any{"a", "b"},
		},
		{
			name: "row slice",
			data: map[string]any{ItemsKey: []map[string]any{{"numero": "1"}}},
			expect: []any{
				map[string]any{"numero": "1"},
			},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			diff := cmp.Diff(test.expect, Result{Data: test.data}.Items())
			require.Empty(t, diff)
		})
	}
}

func TestResultMetadata(t *testing.T) {
	result := Result{Data: map[string]any{
		"titulo": "Processos",
		ItemsKey: []any{1, 2},
	}}
	require.Empty(t, cmp.Diff(map[string]any{"titulo": "Processos"}, result.Metadata()))
	require.Len(t, result.Data, 2)
}

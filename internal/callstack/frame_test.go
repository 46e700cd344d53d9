package callstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFuncName(t *testing.T) {
	tests := []struct {
		qualified string
		module    string
		typ       string
		fn        string
	}{
		{"main.main", "main", "", "main"},
		{"github.com/acme/shop.(*Cart).Add", "github.com/acme/shop", "Cart", "Add"},
		{"github.com/acme/shop.Cart.Total", "github.com/acme/shop", "Cart", "Total"},
		{"github.com/acme/shop.Checkout", "github.com/acme/shop", "", "Checkout"},
		{"github.com/acme/shop.Checkout.func1", "github.com/acme/shop", "", "Checkout.func1"},
		{"github.com/acme/shop.(*Cart).Add.func2", "github.com/acme/shop", "Cart", "Add.func2"},
		{"github.com/acme/shop.(*Box[...]).Get", "github.com/acme/shop", "Box", "Get"},
		{"gopkg.in/yaml%2ev3.Unmarshal", "gopkg.in/yaml.v3", "", "Unmarshal"},
		{"", "<unknown>", "", "<unknown>"},
	}

	for _, tt := range tests {
		t.Run(tt.qualified, func(t *testing.T) {
			module, typ, fn := splitFuncName(tt.qualified)
			assert.Equal(t, tt.module, module)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.fn, fn)
		})
	}
}

func TestFrameFullyQualifiedName(t *testing.T) {
	method := frameFromRuntime("github.com/acme/shop.(*Cart).Add", "cart.go", 10)
	assert.Equal(t, "github.com/acme/shop.Cart.Add", method.FullyQualifiedName())

	fn := frameFromRuntime("github.com/acme/shop.Checkout", "checkout.go", 3)
	assert.Equal(t, "github.com/acme/shop.Checkout", fn.FullyQualifiedName())
}

func TestFrameVariable(t *testing.T) {
	f := newFrame(FrameInfo{
		Function: "Add",
		Module:   "shop",
		File:     "cart.go",
		Line:     12,
		Locals:   map[string]any{"qty": 3, "item": "apple"},
	})

	r := f.Variable("qty")
	require.True(t, r.IsOk())
	assert.Equal(t, Variable{Name: "qty", Value: 3}, r.Value())

	missing := f.Variable("price")
	require.True(t, missing.IsErr())
	info := missing.Error()
	assert.Equal(t, "Variable not found", info.Message)
	assert.Equal(t, "price", info.Context["variable_name"])
	assert.Equal(t, []string{"item", "qty"}, info.Context["available_variables"])
	assert.Equal(t, Location{File: "cart.go", Line: 12, Function: "Add", Module: "shop"}, info.Location)
}

func TestFrameVariablesIsCopy(t *testing.T) {
	locals := map[string]any{"a": 1}
	f := newFrame(FrameInfo{Locals: locals})
	locals["b"] = 2

	vars := f.Variables()
	vars["c"] = 3
	assert.Equal(t, map[string]any{"a": 1}, f.Variables())
}

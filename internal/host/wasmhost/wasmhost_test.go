package wasmhost

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"addhost/pkg/extension"
)

func TestRunDemoGuest(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := New(extension.Demo(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name string
		a, b int64
		want int64
	}{
		{"small", 2, 3, 5},
		{"zero", 0, 0, 0},
		{"negative cancels", -1, 1, 0},
		{"wraps at max", math.MaxInt64, 1, math.MinInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Run(ctx, DemoGuest(), "add", tt.a, tt.b)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunUnknownExport(t *testing.T) {
	h := New(extension.Demo(), nil)
	_, err := h.Run(context.Background(), DemoGuest(), "sub", 1, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exports no function")
}

func TestRunRejectsGarbageGuest(t *testing.T) {
	h := New(extension.Demo(), nil)
	_, err := h.Run(context.Background(), []byte("not wasm"), "add", 1, 2)
	require.Error(t, err)
}

// A guest importing a callable the module does not register must fail at
// instantiation, not at call time.
func TestRunUnresolvedImport(t *testing.T) {
	mod, err := extension.New("other", "")
	require.NoError(t, err)

	h := New(mod, nil)
	_, err = h.Run(context.Background(), DemoGuest(), "add", 1, 2)
	require.Error(t, err)
}

package netobject

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndResolveMethod(t *testing.T) {
	r := NewRegistry()
	r.Register(ClassBundle{
		ClassID:       "Counter",
		Methods:       map[string]string{"increment": "counter.increment"},
		StaticMethods: map[string]string{"zero": "counter.zero"},
	})

	fnID, err := r.ResolveMethod("Counter", "increment")
	require.NoError(t, err)
	require.Equal(t, "counter.increment", fnID)

	fnID, err = r.ResolveMethod("Counter", "zero")
	require.NoError(t, err)
	require.Equal(t, "counter.zero", fnID)

	_, err = r.ResolveMethod("Counter", "missing")
	require.Error(t, err)

	_, err = r.ResolveMethod("Unknown", "whatever")
	require.Error(t, err)
}

func TestRegisterOverwritesExistingBundle(t *testing.T) {
	r := NewRegistry()
	r.Register(ClassBundle{ClassID: "X", Methods: map[string]string{"m": "v1"}})
	r.Register(ClassBundle{ClassID: "X", Methods: map[string]string{"m": "v2"}})

	fnID, err := r.ResolveMethod("X", "m")
	require.NoError(t, err)
	require.Equal(t, "v2", fnID)
}

package archiver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_GetAndNames(t *testing.T) {
	a := &fakeArchiver{name: "monolith", ext: "html"}
	b := &fakeArchiver{name: "screenshot", ext: "png"}
	reg := NewRegistry(a, b)

	got, err := reg.Get("monolith")
	require.NoError(t, err)
	require.Same(t, a, got)

	require.Equal(t, []string{"monolith", "screenshot"}, reg.Names())
}

func TestRegistry_Get_Unknown(t *testing.T) {
	reg := NewRegistry(&fakeArchiver{name: "monolith"})

	_, err := reg.Get("readability")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownArchiver))
}

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry(
		&fakeArchiver{name: "readability"},
		&fakeArchiver{name: "monolith"},
		&fakeArchiver{name: "pdf"},
	)
	require.Equal(t, []string{"readability", "monolith", "pdf"}, reg.Names())
}

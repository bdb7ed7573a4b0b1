package sealed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIdentity(t *testing.T) {
	identity, recipient, err := GenerateIdentity()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(identity, "AGE-SECRET-KEY-1"), "identity = %q", identity)
	assert.True(t, strings.HasPrefix(recipient, "age1"), "recipient = %q", recipient)
}

func TestSealOpenRoundTrip(t *testing.T) {
	identity, _, err := GenerateIdentity()
	require.NoError(t, err)
	box, err := New(identity)
	require.NoError(t, err)
	require.True(t, box.Enabled())

	sealed, err := box.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, prefix))
	assert.NotContains(t, sealed, "hunter2")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened)
}

func TestPassThroughWithoutIdentity(t *testing.T) {
	box, err := New("")
	require.NoError(t, err)
	assert.False(t, box.Enabled())

	sealed, err := box.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", sealed)

	opened, err := box.Open("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", opened)

	var nilBox *Box
	assert.False(t, nilBox.Enabled())
}

func TestOpenLegacyPlaintextWithIdentity(t *testing.T) {
	identity, _, err := GenerateIdentity()
	require.NoError(t, err)
	box, err := New(identity)
	require.NoError(t, err)

	opened, err := box.Open("written-before-sealing")
	require.NoError(t, err)
	assert.Equal(t, "written-before-sealing", opened)
}

func TestOpenSealedWithoutIdentityFails(t *testing.T) {
	identity, _, err := GenerateIdentity()
	require.NoError(t, err)
	box, err := New(identity)
	require.NoError(t, err)
	sealed, err := box.Seal("x")
	require.NoError(t, err)

	plain, err := New("")
	require.NoError(t, err)
	_, err = plain.Open(sealed)
	assert.Error(t, err)
}

func TestOpenWithWrongIdentityFails(t *testing.T) {
	first, _, err := GenerateIdentity()
	require.NoError(t, err)
	second, _, err := GenerateIdentity()
	require.NoError(t, err)

	a, err := New(first)
	require.NoError(t, err)
	b, err := New(second)
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestNewRejectsMalformedIdentity(t *testing.T) {
	_, err := New("not-a-key")
	assert.Error(t, err)
}

package credential

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestToAddressFromPrivateKey(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	for _, raw := range []string{testKey, "0x" + testKey, "  " + testKey + "\n"} {
		addr, derived := ToAddress(New(raw))
		assert.True(t, derived)
		assert.Equal(t, want, addr)
	}
}

func TestToAddressFallbackIsDeterministic(t *testing.T) {
	first, derived := ToAddress(New("not-a-key"))
	assert.False(t, derived)
	second, _ := ToAddress(New("not-a-key"))
	assert.Equal(t, first, second)

	other, _ := ToAddress(New("another"))
	assert.NotEqual(t, first, other)
}

func TestZeroWipesMaterial(t *testing.T) {
	c := New(testKey)
	raw := c.Bytes()
	c.Zero()

	assert.True(t, c.IsZero())
	assert.Nil(t, c.Bytes())
	assert.Equal(t, testKey, string(raw), "copies handed out earlier are owned by the caller")

	_, err := PrivateKey(c)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedactNeverLeaksFullKey(t *testing.T) {
	c := New(testKey)
	assert.Equal(t, "b71c71...f291", c.String())
	assert.Equal(t, "****", Redact("abcd"))

	encoded, err := json.Marshal(struct {
		Key *Credential `json:"key"`
	}{c})
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), testKey)
}

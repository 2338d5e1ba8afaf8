package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier(nil)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = NewVerifier([]byte{})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestVerifier_Sign(t *testing.T) {
	v, err := NewVerifier([]byte("test_secret"))
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("test_secret"))
	mac.Write([]byte("order_abc|pay_xyz"))
	expected := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, v.Sign("order_abc", "pay_xyz"))
}

func TestVerifier_Verify(t *testing.T) {
	v, err := NewVerifier([]byte("test_secret"))
	require.NoError(t, err)

	t.Run("valid signature", func(t *testing.T) {
		sig := v.Sign("order_abc", "pay_xyz")
		assert.True(t, v.Verify("order_abc", "pay_xyz", sig))
	})

	t.Run("deterministic for same inputs", func(t *testing.T) {
		sig := v.Sign("order_abc", "pay_xyz")
		for i := 0; i < 5; i++ {
			assert.True(t, v.Verify("order_abc", "pay_xyz", sig))
		}
	})

	t.Run("flipping any character invalidates", func(t *testing.T) {
		sig := v.Sign("order_abc", "pay_xyz")
		for i := range sig {
			b := []byte(sig)
			if b[i] == 'a' {
				b[i] = 'b'
			} else {
				b[i] = 'a'
			}
			assert.False(t, v.Verify("order_abc", "pay_xyz", string(b)), "index %d", i)
		}
	})

	t.Run("wrong order id", func(t *testing.T) {
		sig := v.Sign("order_abc", "pay_xyz")
		assert.False(t, v.Verify("order_def", "pay_xyz", sig))
	})

	t.Run("wrong payment id", func(t *testing.T) {
		sig := v.Sign("order_abc", "pay_xyz")
		assert.False(t, v.Verify("order_abc", "pay_other", sig))
	})

	t.Run("garbage signature", func(t *testing.T) {
		assert.False(t, v.Verify("order_abc", "pay_xyz", "deadbeef"))
	})

	t.Run("uppercase hex is rejected", func(t *testing.T) {
		sig := v.Sign("order_abc", "pay_xyz")
		upper := ""
		for _, c := range sig {
			if c >= 'a' && c <= 'f' {
				c = c - 'a' + 'A'
			}
			upper += string(c)
		}
		if upper != sig {
			assert.False(t, v.Verify("order_abc", "pay_xyz", upper))
		}
	})

	t.Run("different secrets disagree", func(t *testing.T) {
		other, err := NewVerifier([]byte("other_secret"))
		require.NoError(t, err)
		sig := v.Sign("order_abc", "pay_xyz")
		assert.False(t, other.Verify("order_abc", "pay_xyz", sig))
	})
}

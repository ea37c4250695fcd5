package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-shared-secret"

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(testSecret)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "short payload", plaintext: `{"institution":"Clinica Norte"}`},
		{name: "empty payload", plaintext: ""},
		{name: "block-aligned payload", plaintext: string(make([]byte, 64))},
		{name: "unicode payload", plaintext: `{"institution":"Hospital Niño Jesús"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := codec.Encrypt([]byte(tt.plaintext))
			require.NoError(t, err)
			assert.Equal(t, byte(formatVersion), blob[0])

			plaintext, err := codec.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, string(plaintext))
		})
	}
}

func TestCodecEncryptUsesFreshIV(t *testing.T) {
	codec := NewCodec(testSecret)

	first, err := codec.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	second, err := codec.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two encryptions must not share an IV")
}

func TestCodecDecryptFailures(t *testing.T) {
	codec := NewCodec(testSecret)
	blob, err := codec.Encrypt([]byte(`{"institution":"x"}`))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "empty blob", mutate: func(b []byte) []byte { return nil }},
		{name: "too short", mutate: func(b []byte) []byte { return b[:10] }},
		{name: "unknown version", mutate: func(b []byte) []byte {
			c := append([]byte(nil), b...)
			c[0] = 0x7f
			return c
		}},
		{name: "truncated ciphertext", mutate: func(b []byte) []byte { return b[:len(b)-5] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decrypt(tt.mutate(blob))
			assert.ErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestCodecDecryptCorruptedCiphertext(t *testing.T) {
	codec := NewCodec(testSecret)
	original := []byte(`{"institution":"Clinica Norte"}`)
	blob, err := codec.Encrypt(original)
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xff
	plaintext, err := codec.Decrypt(blob)
	if err == nil {
		// Corruption of the final block can, rarely, leave valid padding;
		// the recovered plaintext still cannot match the original.
		assert.NotEqual(t, original, plaintext)
		return
	}
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCodecDecryptWrongKey(t *testing.T) {
	blob, err := NewCodec(testSecret).Encrypt([]byte(`{"institution":"Clinica Norte"}`))
	require.NoError(t, err)

	plaintext, err := NewCodec("a completely different secret").Decrypt(blob)
	if err == nil {
		// CBC with a wrong key almost always breaks the padding; in the
		// rare case it survives, the output must still be garbage.
		assert.NotContains(t, string(plaintext), "Clinica Norte")
		return
	}
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCodecSignDeterministic(t *testing.T) {
	codec := NewCodec(testSecret)
	core := SignedCore{
		Institution:   "Hospital General",
		ValidUntil:    "2026-01-01",
		AllowedDomain: "hospital.mx",
		Features:      DefaultFeatures,
	}

	first, err := codec.Sign(core)
	require.NoError(t, err)
	second, err := codec.Sign(core)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "lowercase hex HMAC-SHA256")
	assert.Equal(t, first, string([]byte(first)), "hex digest is ASCII")
}

func TestCodecSignDependsOnEveryField(t *testing.T) {
	codec := NewCodec(testSecret)
	base := SignedCore{
		Institution:   "Hospital General",
		ValidUntil:    "2026-01-01",
		AllowedDomain: "hospital.mx",
		Features:      []string{"modulo_personal"},
	}
	baseSig, err := codec.Sign(base)
	require.NoError(t, err)

	variants := []SignedCore{
		{Institution: "Hospital General 2", ValidUntil: base.ValidUntil, AllowedDomain: base.AllowedDomain, Features: base.Features},
		{Institution: base.Institution, ValidUntil: "2026-01-02", AllowedDomain: base.AllowedDomain, Features: base.Features},
		{Institution: base.Institution, ValidUntil: base.ValidUntil, AllowedDomain: "other.mx", Features: base.Features},
		{Institution: base.Institution, ValidUntil: base.ValidUntil, AllowedDomain: base.AllowedDomain, Features: []string{"modulo_completo"}},
	}
	for _, v := range variants {
		sig, err := codec.Sign(v)
		require.NoError(t, err)
		assert.NotEqual(t, baseSig, sig)
	}
}

func TestVerifySignature(t *testing.T) {
	codec := NewCodec(testSecret)
	core := SignedCore{
		Institution:   "Clinica Norte",
		ValidUntil:    ValidUntilPermanent,
		AllowedDomain: AnyDomain,
		Features:      DefaultFeatures,
	}
	sig, err := codec.Sign(core)
	require.NoError(t, err)

	payload := &Payload{
		Institution:   core.Institution,
		ValidUntil:    core.ValidUntil,
		AllowedDomain: core.AllowedDomain,
		Features:      core.Features,
		Signature:     sig,
	}
	assert.NoError(t, codec.VerifySignature(payload))

	payload.Institution = "Clinica Sur"
	assert.ErrorIs(t, codec.VerifySignature(payload), ErrSignatureInvalid)

	payload.Institution = core.Institution
	payload.Signature = "deadbeef"
	assert.ErrorIs(t, codec.VerifySignature(payload), ErrSignatureInvalid)

	// A foreign secret produces a foreign signature.
	assert.ErrorIs(t, NewCodec("other-secret").VerifySignature(&Payload{
		Institution:   core.Institution,
		ValidUntil:    core.ValidUntil,
		AllowedDomain: core.AllowedDomain,
		Features:      core.Features,
		Signature:     sig,
	}), ErrSignatureInvalid)
}

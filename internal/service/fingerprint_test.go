package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadFingerprint(t *testing.T) {
	t.Run("key order does not matter", func(t *testing.T) {
		a := PayloadFingerprint(`{"amount": "150.00", "beneficiary_id": "b1"}`)
		b := PayloadFingerprint(`{"beneficiary_id": "b1", "amount": "150.00"}`)
		assert.Equal(t, a, b)
	})

	t.Run("whitespace does not matter", func(t *testing.T) {
		a := PayloadFingerprint(`{"amount":"150.00"}`)
		b := PayloadFingerprint("{\n  \"amount\": \"150.00\"\n}")
		assert.Equal(t, a, b)
	})

	t.Run("different values differ", func(t *testing.T) {
		a := PayloadFingerprint(`{"amount": "150.00"}`)
		b := PayloadFingerprint(`{"amount": "151.00"}`)
		assert.NotEqual(t, a, b)
	})

	t.Run("nested objects are canonicalized", func(t *testing.T) {
		a := PayloadFingerprint(`{"outer": {"x": 1, "y": 2}}`)
		b := PayloadFingerprint(`{"outer": {"y": 2, "x": 1}}`)
		assert.Equal(t, a, b)
	})

	t.Run("non-JSON payload hashes as-is", func(t *testing.T) {
		a := PayloadFingerprint("not json at all")
		b := PayloadFingerprint("not json at all")
		c := PayloadFingerprint("not json at  all")
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
	})

	t.Run("fingerprint is a hex sha-256", func(t *testing.T) {
		assert.Len(t, PayloadFingerprint(`{}`), 64)
	})
}

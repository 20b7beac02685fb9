package digital

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		s, err := GenerateSecret()
		require.NoError(t, err)
		require.Len(t, s, SecretLength)
		require.NoError(t, ValidateSecret(s))
		_, dup := seen[s]
		require.False(t, dup, "duplicate secret %q", s)
		seen[s] = struct{}{}
	}
}

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		reason string
	}{
		{name: "blank", secret: "", reason: "can't be blank"},
		{name: "too short", secret: strings.Repeat("a", 29), reason: "must be 30 characters"},
		{name: "too long", secret: strings.Repeat("a", 31), reason: "must be 30 characters"},
		{name: "bad characters", secret: strings.Repeat("a", 29) + "-", reason: "contains invalid characters"},
		{name: "ok", secret: strings.Repeat("aZ9", 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "secret", verr.Field)
			assert.Equal(t, tt.reason, verr.Reason)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestValidateLink(t *testing.T) {
	good := linkAt(0, t0)
	require.NoError(t, ValidateLink(good))

	noDigital := good
	noDigital.DigitalID = 0
	assertField(t, ValidateLink(noDigital), "digital_id")

	noLineItem := good
	noLineItem.LineItemID = 0
	assertField(t, ValidateLink(noLineItem), "line_item_id")

	negative := good
	negative.AccessCounter = -1
	assertField(t, ValidateLink(negative), "access_counter")
}

func TestApplyChanges(t *testing.T) {
	link := linkAt(2, t0)
	other := strings.Repeat("b", SecretLength)
	blank := ""
	short := "abc"
	same := link.Secret
	newDigital := int64(9)
	zero := int64(0)

	t.Run("changing secret is rejected", func(t *testing.T) {
		_, err := ApplyChanges(link, LinkChanges{Secret: &other})
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "can't be changed", verr.Reason)
	})
	t.Run("clearing secret is rejected as blank", func(t *testing.T) {
		_, err := ApplyChanges(link, LinkChanges{Secret: &blank})
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "can't be blank", verr.Reason)
	})
	t.Run("wrong length secret is rejected", func(t *testing.T) {
		_, err := ApplyChanges(link, LinkChanges{Secret: &short})
		assertField(t, err, "secret")
	})
	t.Run("same secret is a no-op", func(t *testing.T) {
		next, err := ApplyChanges(link, LinkChanges{Secret: &same})
		require.NoError(t, err)
		assert.Equal(t, link, next)
	})
	t.Run("clearing digital is rejected", func(t *testing.T) {
		_, err := ApplyChanges(link, LinkChanges{DigitalID: &zero})
		assertField(t, err, "digital_id")
	})
	t.Run("reassign digital keeps counter", func(t *testing.T) {
		next, err := ApplyChanges(link, LinkChanges{DigitalID: &newDigital})
		require.NoError(t, err)
		assert.Equal(t, newDigital, next.DigitalID)
		assert.Equal(t, 2, next.AccessCounter)
		assert.Equal(t, int64(1), link.DigitalID, "original must stay unchanged")
	})
}

func TestRefRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 42, 1 << 40} {
		ref, err := EncodeRef(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(ref), 6)
		got, err := DecodeRef(ref)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := EncodeRef(0)
	assert.ErrorIs(t, err, ErrInvalidRef)
	_, err = DecodeRef("")
	assert.ErrorIs(t, err, ErrInvalidRef)
	_, err = DecodeRef("!!!")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
	assert.Equal(t, field, verr.Field)
}

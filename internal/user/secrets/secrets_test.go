package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "projectdesk/pkg/domain-errors"
)

func TestHashAndVerify(t *testing.T) {
	t.Run("hash verifies against the original password", func(t *testing.T) {
		hash, err := Hash("correct horse battery staple")
		require.NoError(t, err)
		assert.NotEqual(t, "correct horse battery staple", hash)
		assert.NoError(t, Verify("correct horse battery staple", hash))
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		hash, err := Hash("s3cret-pass")
		require.NoError(t, err)
		err = Verify("other-pass", hash)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("empty password rejected", func(t *testing.T) {
		_, err := Hash("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("password over bcrypt limit rejected", func(t *testing.T) {
		_, err := Hash(strings.Repeat("x", 100))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "simple password", password: "password123"},
		{name: "complex password", password: "P@ssw0rd!2023#$%^&*()"},
		{name: "at the bcrypt limit", password: strings.Repeat("a", 72)},
		{name: "over the bcrypt limit", password: strings.Repeat("a", 73), wantErr: ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)

			cost, err := bcrypt.Cost([]byte(hash))
			require.NoError(t, err)
			assert.Equal(t, bcrypt.DefaultCost, cost)
		})
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("wrong horse", hash))
	assert.False(t, CheckPassword("correct horse", "not-a-hash"))
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", 80)), ErrPasswordTooLong)
	assert.NoError(t, ValidatePassword("long enough"))
}

package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := NewManager(TokenConfig{Secret: []byte("test-secret")})

	user := User{ID: uuid.New(), DisplayName: "alice", Rating: 1340}
	token, err := mgr.GenerateToken(user)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.DisplayName)
	assert.Equal(t, 1340, claims.Rating)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	mgr := NewManager(TokenConfig{Secret: []byte("secret-a")})
	other := NewManager(TokenConfig{Secret: []byte("secret-b")})

	token, err := mgr.GenerateToken(User{ID: uuid.New(), DisplayName: "bob", Rating: 1200})
	assert.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	mgr := NewManager(TokenConfig{Secret: []byte("test-secret"), TTL: -time.Minute})

	token, err := mgr.GenerateToken(User{ID: uuid.New(), DisplayName: "carol", Rating: 1200})
	assert.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	mgr := NewManager(TokenConfig{Secret: []byte("test-secret")})

	_, err := mgr.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

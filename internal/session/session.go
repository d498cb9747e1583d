// Package session keeps the table of live sessions and authorizes raw
// requests against it.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/npezzotti/go-rawchat/internal/httpx"
	"github.com/npezzotti/go-rawchat/internal/types"
)

const (
	IdCookie    = "id"
	TokenCookie = "token"
	NameCookie  = "name"

	credentialHashLen = 64

	subjectClaim = "sub"
	tokenIdClaim = "jti"
)

// ErrUnauthenticated is returned for every failed authorization, whatever
// the cause.
var ErrUnauthenticated = errors.New("unauthenticated")

// IsCredentialHash reports whether s has the shape of a credential hash:
// exactly 64 hexadecimal digits.
func IsCredentialHash(s string) bool {
	if len(s) != credentialHashLen {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}

	return true
}

// CanonicalCredentialHash returns the stored form of a credential hash:
// lowercase hexadecimal.
func CanonicalCredentialHash(s string) string {
	return strings.ToLower(s)
}

type Store struct {
	mu         sync.Mutex
	sessions   []types.Session
	signingKey []byte
}

func NewStore(signingKey []byte) *Store {
	return &Store{signingKey: signingKey}
}

// Create issues a fresh token for accountId. Existing sessions for the
// account are left in place.
func (s *Store) Create(accountId string) (types.Session, error) {
	token, err := s.newToken(accountId)
	if err != nil {
		return types.Session{}, fmt.Errorf("sign token: %w", err)
	}

	sess := types.Session{Id: accountId, Token: token}

	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()

	return sess, nil
}

func (s *Store) Validate(id, token string) (types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.Id == id && sess.Token == token {
			return sess, true
		}
	}

	return types.Session{}, false
}

// Invalidate removes every session held by id and returns how many were
// removed.
func (s *Store) Invalidate(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.Id != id {
			kept = append(kept, sess)
		}
	}

	removed := len(s.sessions) - len(kept)
	clear(s.sessions[len(kept):])
	s.sessions = kept

	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Authorize resolves the session carried by the id and token cookies of a
// raw request.
func (s *Store) Authorize(raw []byte) (types.Session, error) {
	cookies := httpx.Cookies(raw)

	id, token := cookies[IdCookie], cookies[TokenCookie]
	if id == "" || token == "" {
		return types.Session{}, ErrUnauthenticated
	}

	if err := s.verifyToken(id, token); err != nil {
		return types.Session{}, ErrUnauthenticated
	}

	sess, ok := s.Validate(id, token)
	if !ok {
		return types.Session{}, ErrUnauthenticated
	}

	return sess, nil
}

func (s *Store) newToken(accountId string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subjectClaim: accountId,
		tokenIdClaim: uuid.NewString(),
	})

	return token.SignedString(s.signingKey)
}

func (s *Store) verifyToken(id, tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("invalid token claims")
	}

	if sub, _ := claims[subjectClaim].(string); sub != id {
		return fmt.Errorf("token subject does not match session id")
	}

	return nil
}

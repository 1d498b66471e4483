// Package auth guards the admin surface with one shared password and signed session tokens.
package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/victornm/pubquiz/internal/errors"
)

const (
	subject    = "admin"
	issuer     = "pubquiz"
	defaultTTL = 7 * 24 * time.Hour
)

type Config struct {
	// PasswordHash is a bcrypt hash of the admin password. It takes precedence over Password.
	PasswordHash string
	Password     string
	Secret       string
	TTL          time.Duration
	Now          func() time.Time
}

type Service struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(c Config) (*Service, error) {
	if c.Secret == "" {
		return nil, stderrors.New("auth: token secret is required")
	}

	s := &Service{
		hash:   []byte(c.PasswordHash),
		secret: []byte(c.Secret),
		ttl:    c.TTL,
		now:    c.Now,
	}

	if len(s.hash) == 0 {
		if c.Password == "" {
			return nil, stderrors.New("auth: admin password is required")
		}

		h, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("auth: hash password: %w", err)
		}
		s.hash = h
	}

	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

type LoginRequest struct {
	Password string
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Login checks the admin password and issues a session token.
func (s *Service) Login(req LoginRequest) (*Token, error) {
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(req.Password)); err != nil {
		return nil, errors.Newf(errors.ReasonUnauthenticated, "invalid password")
	}

	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	v, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Token{Value: v, ExpiresAt: exp}, nil
}

// Verify returns the expiry of a valid admin token.
func (s *Service) Verify(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(subject),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return time.Time{}, errors.New(errors.CodeUnauthenticated,
			errors.WithReason(errors.ReasonUnauthenticated),
			errors.WithMessagef("invalid admin token"),
			errors.WithCause(err),
		)
	}

	return claims.ExpiresAt.Time, nil
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrOperatorExists = errors.New("operator already exists")
	ErrInvalidCreds   = errors.New("invalid credentials")
)

// Operator is a reviewer account for the draft queue.
type Operator struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string   `json:"token"`
	Operator Operator `json:"operator"`
}

// Service issues and validates operator tokens.
type Service struct {
	db     *pgxpool.Pool
	secret []byte
}

// NewService builds the auth service. An empty jwtSecret gets replaced by a
// random ephemeral one, so tokens then die with the process.
func NewService(pool *pgxpool.Pool, jwtSecret string) (*Service, error) {
	secret := []byte(strings.TrimSpace(jwtSecret))
	if len(secret) == 0 {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating fallback JWT secret: %w", err)
		}
		secret = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Print("[Auth] JWT_SECRET is not set; issued tokens will not survive a restart")
	}
	return &Service{db: pool, secret: secret}, nil
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", req.Email)
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM operators WHERE email = $1)", email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking for operator: %w", err)
	}
	if exists {
		return nil, ErrOperatorExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	var op Operator
	err = s.db.QueryRow(ctx, `
		INSERT INTO operators (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, created_at
	`, email, string(hash)).Scan(&op.ID, &op.Email, &op.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating operator: %w", err)
	}

	token, err := s.token(op.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, Operator: op}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var op Operator
	err := s.db.QueryRow(ctx,
		"SELECT id, email, password_hash, created_at FROM operators WHERE email = $1", email,
	).Scan(&op.ID, &op.Email, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, fmt.Errorf("loading operator: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	token, err := s.token(op.ID)
	if err != nil {
		return nil, err
	}

	op.PasswordHash = ""
	return &AuthResponse{Token: token, Operator: op}, nil
}

func (s *Service) token(operatorID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": operatorID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

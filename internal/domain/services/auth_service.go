package services

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AuthService guards the admin HTTP API. There is a single operator
// account configured through the environment; login exchanges its
// credentials for a short-lived JWT.
type AuthService interface {
	Login(req *LoginRequest) (*AuthResponse, error)
	ValidateToken(tokenString string) (*TokenClaims, error)
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type authService struct {
	username     string
	passwordHash string
	jwtService   JWTService
}

func NewAuthService(username, passwordHash string, jwtService JWTService) AuthService {
	return &authService{
		username:     username,
		passwordHash: passwordHash,
		jwtService:   jwtService,
	}
}

func (s *authService) Login(req *LoginRequest) (*AuthResponse, error) {
	if req.Username != s.username {
		return nil, fmt.Errorf("invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid username or password")
	}

	token, err := s.jwtService.GenerateToken(req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &AuthResponse{Token: token}, nil
}

func (s *authService) ValidateToken(tokenString string) (*TokenClaims, error) {
	return s.jwtService.ValidateToken(tokenString)
}

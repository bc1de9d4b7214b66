package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"peermarket/internal/config"
	"peermarket/internal/utils"
	"peermarket/pkg/log"
	pkgutils "peermarket/pkg/utils"
)

// LoginRequest operator login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse issued operator token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Service authenticates the node operator. There is a single operator
// account configured at deploy time; this is a node daemon, not a
// multi-tenant service.
type Service struct {
	cfg        config.AuthConfig
	jwtManager *utils.JWTManager
}

// NewService creates the operator auth service
func NewService(cfg config.AuthConfig, jwtManager *utils.JWTManager) *Service {
	return &Service{cfg: cfg, jwtManager: jwtManager}
}

// Login verifies operator credentials and issues an access token
func (s *Service) Login(ctx context.Context, req *LoginRequest, ip string) (*TokenResponse, error) {
	if req.Username != s.cfg.OperatorUser {
		log.WithFields(map[string]interface{}{
			"username": req.Username,
			"ip":       ip,
		}).Warn("Login with unknown operator")
		return nil, pkgutils.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorPassHash), []byte(req.Password)); err != nil {
		log.WithFields(map[string]interface{}{
			"username": req.Username,
			"ip":       ip,
		}).Warn("Login with bad password")
		return nil, pkgutils.ErrUnauthorized
	}

	token, err := s.jwtManager.GenerateAccessToken(req.Username, "operator")
	if err != nil {
		return nil, pkgutils.NewErrorWithErr(pkgutils.CodeInternalError, "token generation failed", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessExpire.Seconds()),
	}, nil
}

// Validate checks a bearer token and returns its claims
func (s *Service) Validate(token string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, pkgutils.ErrUnauthorized
	}
	return claims, nil
}

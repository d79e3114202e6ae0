package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"lpr-service/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Parser validates HS256 access tokens issued by the auth service.
type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

func (p *Parser) Parse(tokenString string) (model.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	principal := model.Principal{
		UserID: userID,
		Role:   model.UserRole(claims.Role),
	}
	if claims.OrgID != "" {
		orgID, err := uuid.Parse(claims.OrgID)
		if err != nil {
			return model.Principal{}, fmt.Errorf("%w: org_id is not a uuid", ErrInvalidToken)
		}
		principal.OrgID = orgID
	}
	if principal.Role == "" {
		return model.Principal{}, fmt.Errorf("%w: role is missing", ErrInvalidToken)
	}

	return principal, nil
}

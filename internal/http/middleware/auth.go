package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lpr-service/internal/model"
)

const principalKey = "principal"

type TokenParser interface {
	Parse(token string) (model.Principal, error)
}

func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		principal, err := parser.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

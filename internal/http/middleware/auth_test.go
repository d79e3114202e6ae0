package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"lpr-service/internal/model"
)

type parserFunc func(string) (model.Principal, error)

func (f parserFunc) Parse(token string) (model.Principal, error) { return f(token) }

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	parser := parserFunc(func(token string) (model.Principal, error) {
		if token != "good" {
			return model.Principal{}, errors.New("bad token")
		}
		return model.Principal{UserID: userID, Role: model.UserRoleAdmin}, nil
	})

	r := gin.New()
	r.GET("/me", Auth(parser), func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, p.UserID.String())
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, userID.String(), w.Body.String())
			}
		})
	}
}

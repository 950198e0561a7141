package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"animalfaces-api/internal/pkg/jwtutil"
	"animalfaces-api/internal/transport/http/response"
)

const contextSubjectKey = "jwt_subject"

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errAuthorizationScheme  = errors.New("invalid authorization scheme")
)

// AuthJWT admits requests carrying a valid bearer token signed with secret
// and records the token subject for Subject.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(contextSubjectKey, claims.Subject)
		c.Next()
	}
}

// Subject returns the authenticated subject, or "" on routes without AuthJWT.
func Subject(c *gin.Context) string {
	return c.GetString(contextSubjectKey)
}

// bearerToken extracts the credentials of a "Bearer" authorization header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errAuthorizationScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errAuthorizationScheme
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="predictions"`)
	response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, message)
	c.Abort()
}

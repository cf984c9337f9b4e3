package middleware

import (
	"errors"
	"io"
	"net/http"

	"wallet-service/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// MaxBodySize limits the request body. Reads past the limit fail and the
// connection is closed after the response.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// ReadBody reads the whole request body, mapping an exceeded limit to VAL_002.
func ReadBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperror.ErrPayloadTooLarge()
		}
		return nil, apperror.Validation("cannot read request body")
	}
	return body, nil
}

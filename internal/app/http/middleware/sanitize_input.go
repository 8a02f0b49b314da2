package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

// SanitizeAndCleanInputMiddleware cleans all string fields in JSON input using bluemonday
func SanitizeAndCleanInputMiddleware() gin.HandlerFunc {
	policy := bluemonday.StrictPolicy()
	return func(c *gin.Context) {
		// Only for JSON requests
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		var body map[string]interface{}
		buf, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
			return
		}
		if err := json.Unmarshal(buf, &body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Malformed JSON"})
			return
		}

		sanitizeValue(policy, body)

		newBody, _ := json.Marshal(body)
		c.Request.Body = io.NopCloser(bytes.NewBuffer(newBody))
		c.Request.ContentLength = int64(len(newBody))

		c.Next()
	}
}

// sanitizeValue walks nested objects and arrays so participant lists are
// cleaned too, not just top-level fields.
func sanitizeValue(policy *bluemonday.Policy, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			if str, ok := item.(string); ok {
				val[k] = policy.Sanitize(str)
			} else {
				sanitizeValue(policy, item)
			}
		}
	case []interface{}:
		for i, item := range val {
			if str, ok := item.(string); ok {
				val[i] = policy.Sanitize(str)
			} else {
				sanitizeValue(policy, item)
			}
		}
	}
}

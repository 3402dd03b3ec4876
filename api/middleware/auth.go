package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/provas/models"
)

// ClientKey is the gin context key holding the caller's identity once Auth
// has accepted it: "key:<fingerprint>" for API keys. RateLimit buckets by it.
const ClientKey = "client"

// Auth guards the preview API with static keys, presented as
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// Keys are held and compared as SHA-256 digests in constant time; only a
// short fingerprint reaches the request context. No keys means open access.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := presentedKey(c)
		if key == "" {
			unauthorized(c, "missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}
		d := sha256.Sum256([]byte(key))
		if !known(digests, d) {
			unauthorized(c, "invalid API key")
			return
		}

		c.Set(ClientKey, "key:"+hex.EncodeToString(d[:4]))
		c.Next()
	}
}

// known checks every digest so the time taken does not depend on which one
// matched.
func known(digests [][sha256.Size]byte, d [sha256.Size]byte) bool {
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(digests[i][:], d[:])
	}
	return match == 1
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="provas"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
	})
}

// presentedKey reads X-API-Key, then a Bearer credential (scheme matched
// case-insensitively).
func presentedKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	scheme, cred, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(cred)
	}
	return ""
}

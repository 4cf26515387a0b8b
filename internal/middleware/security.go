package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/internal/config"
)

type header struct {
	name, value string
}

// SecurityHeaders sets the configured hardening headers on every response.
// Responses are never cached since they carry patient data.
func SecurityHeaders(cfg config.SecurityConfig) gin.HandlerFunc {
	headers := securityHeaders(cfg)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, hd := range headers {
			h.Set(hd.name, hd.value)
		}
		c.Next()
	}
}

func securityHeaders(cfg config.SecurityConfig) []header {
	headers := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"Cache-Control", "no-store"},
	}

	if cfg.HSTSMaxAge > 0 {
		hsts := "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge/time.Second), 10)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		headers = append(headers, header{"Strict-Transport-Security", hsts})
	}

	for _, hd := range []header{
		{"X-Frame-Options", cfg.FrameOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Content-Security-Policy", cfg.ContentSecurityPolicy},
	} {
		if hd.value != "" {
			headers = append(headers, hd)
		}
	}
	return headers
}

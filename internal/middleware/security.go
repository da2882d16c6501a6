package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig selects the protective response headers to emit.
type SecurityHeadersConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int // seconds
	HSTSIncludeSubdomains bool
	// FrameOptionsValue is DENY or SAMEORIGIN; empty omits the header.
	FrameOptionsValue        string
	EnableContentTypeOptions bool
	ContentSecurityPolicy    string
	ReferrerPolicy           string
	PermissionsPolicy        string
	// CrossOriginResourcePolicy is omitted when empty.
	CrossOriginResourcePolicy string
}

// APISecurityHeadersConfig returns the headers applied to every JSON endpoint.
// Cross-origin reads stay allowed because browser frontends on other origins
// consume the API under the CORS policy.
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:                true,
		HSTSMaxAge:                31536000,
		HSTSIncludeSubdomains:     true,
		FrameOptionsValue:         "DENY",
		EnableContentTypeOptions:  true,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:            "no-referrer",
		CrossOriginResourcePolicy: "cross-origin",
	}
}

// FrontendSecurityHeadersConfig returns headers for the static frontend mount, which
// needs to load its own scripts, styles and images.
func FrontendSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:                true,
		HSTSMaxAge:                31536000,
		HSTSIncludeSubdomains:     true,
		FrameOptionsValue:         "SAMEORIGIN",
		EnableContentTypeOptions:  true,
		ContentSecurityPolicy:     "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; connect-src 'self'",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		PermissionsPolicy:         "geolocation=(), microphone=(), camera=()",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// SecurityHeadersMiddleware adds the configured security headers to all responses.
// A later instance in the chain overrides headers set by an earlier one.
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.EnableHSTS {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		if config.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", config.FrameOptionsValue)
		}
		if config.EnableContentTypeOptions {
			c.Header("X-Content-Type-Options", "nosniff")
		}
		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.PermissionsPolicy != "" {
			c.Header("Permissions-Policy", config.PermissionsPolicy)
		}
		if config.CrossOriginResourcePolicy != "" {
			c.Header("Cross-Origin-Resource-Policy", config.CrossOriginResourcePolicy)
		}
		c.Header("X-Permitted-Cross-Domain-Policies", "none")

		c.Next()
	}
}

package registration

import (
	"fmt"
	"strings"
	"time"
)

// TemplateHelpers returns values and functions for the registration views.
// Merge them into the view context, for example through
// WithControllerExtraContext.
//
// In templates, you can then use:
//
//	{{ activation_days }}
//	{{ activation_url(site, activation_key) }}
//	{% if registration_open %}
func TemplateHelpers(cfg Config) map[string]any {
	if cfg == nil {
		cfg = Settings{}
	}

	return map[string]any{
		"site":              SiteFromConfig(cfg),
		"activation_days":   cfg.GetActivationDays(),
		"registration_open": cfg.GetRegistrationOpen(),
		"activation_url":    activationURL,
		"expires_on":        expiresOn(cfg.GetActivationWindow()),
	}
}

func activationURL(site Site, key string) string {
	domain := strings.TrimSuffix(strings.TrimSpace(site.Domain), "/")
	if domain == "" {
		return fmt.Sprintf("/activate/%s", key)
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return fmt.Sprintf("%s/activate/%s", domain, key)
	}
	return fmt.Sprintf("https://%s/activate/%s", domain, key)
}

func expiresOn(window time.Duration) func(profile *RegistrationProfile) string {
	return func(profile *RegistrationProfile) string {
		if profile == nil || profile.RegisteredAt.IsZero() {
			return ""
		}
		return profile.ExpiresAt(window).Format("January 2, 2006")
	}
}

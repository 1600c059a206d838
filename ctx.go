package registration

import (
	"context"
	"strings"

	"github.com/goliatone/go-router"
)

var siteCtxKey = &contextKey{"site"}

type contextKey struct {
	name string
}

// WithSite sets the current Site in the given context
func WithSite(ctx context.Context, site Site) context.Context {
	return context.WithValue(ctx, siteCtxKey, site)
}

// SiteFromContext finds the current Site in the context
func SiteFromContext(ctx context.Context) (Site, bool) {
	if ctx == nil {
		return Site{}, false
	}
	site, ok := ctx.Value(siteCtxKey).(Site)
	return site, ok
}

// ResolveSite returns the site stored in ctx, falling back to cfg
func ResolveSite(ctx context.Context, cfg Config) Site {
	if site, ok := SiteFromContext(ctx); ok {
		return site
	}
	return SiteFromConfig(cfg)
}

// SiteFromRequest builds a Site from the Host header, used when no site is configured
func SiteFromRequest(c router.Context) Site {
	host := strings.TrimSpace(c.GetString("Host", ""))
	if host == "" {
		return Site{}
	}
	return Site{Name: host, Domain: host}
}

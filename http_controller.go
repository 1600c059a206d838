package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// ParamActivationKey is the route parameter holding the activation key
const ParamActivationKey = "activation_key"

// RegisterRegistrationRoutes mounts the registration and activation handlers
func RegisterRegistrationRoutes[T any](app router.Router[T], opts ...RegistrationControllerOption) {
	controller := NewRegistrationController(opts...)

	app.Get(controller.Routes.Register, controller.RegisterShow).
		SetName("registration_register")
	app.Post(controller.Routes.Register, controller.RegisterCreate).
		SetName("registration_register.post")

	app.Get(controller.Routes.RegistrationComplete, controller.RegistrationComplete).
		SetName(RouteRegistrationComplete)
	app.Get(controller.Routes.RegistrationDisallowed, controller.RegistrationDisallowed).
		SetName(RouteRegistrationDisallowed)

	activate := fmt.Sprintf("%s/:%s", controller.Routes.Activate, ParamActivationKey)
	app.Get(activate, controller.ActivateShow).
		SetName("registration_activate")
	app.Post(activate, controller.ActivateExecute).
		SetName("registration_activate.post")

	app.Get(controller.Routes.ActivationComplete, controller.ActivationComplete).
		SetName(RouteActivationComplete)
}

type RegistrationControllerRoutes struct {
	Register               string
	RegistrationComplete   string
	RegistrationDisallowed string
	Activate               string
	ActivationComplete     string
}

type RegistrationControllerViews struct {
	Register               string
	RegistrationComplete   string
	RegistrationDisallowed string
	Activate               string
	ActivationComplete     string
}

// RegistrationController serves the register and activate flows. Backend
// is the reference resolved for every request, the remaining fields are
// per deployment overrides of what the backend would decide.
type RegistrationController struct {
	Debug          bool
	Logger         Logger
	Resolver       *Resolver
	Config         Config
	Backend        string
	ResolveOptions []ResolveOption
	Routes         *RegistrationControllerRoutes
	Views          *RegistrationControllerViews

	RegisterSuccess Destination
	ActivateSuccess Destination
	Disallowed      Destination

	FormFactory           FormFactory[RegistrationForm]
	ActivationFormFactory FormFactory[ActivationForm]

	// ExtraContext is merged into every view, func values are called first
	ExtraContext router.ViewContext
	// RouteParams are the extra route parameters passed to Activate
	RouteParams []string

	ErrorHandler router.ErrorHandler
	Redirect     func(ctx router.Context, dest Destination) error
}

type RegistrationControllerOption func(*RegistrationController) *RegistrationController

// WithControllerResolver sets the resolver backends are built from
func WithControllerResolver(resolver *Resolver) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		c.Resolver = resolver
		return c
	}
}

// WithControllerBackend sets the backend reference
func WithControllerBackend(ref string, opts ...ResolveOption) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		c.Backend = ref
		c.ResolveOptions = append(c.ResolveOptions, opts...)
		return c
	}
}

// WithControllerConfig sets the configuration used to describe the site
func WithControllerConfig(cfg Config) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		c.Config = cfg
		return c
	}
}

// WithControllerLogger overrides the logger
func WithControllerLogger(logger Logger) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		_, c.Logger = ResolveLogger("registration.http", nil, logger)
		return c
	}
}

// WithControllerExtraContext merges values into every rendered view
func WithControllerExtraContext(extra router.ViewContext) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		if c.ExtraContext == nil {
			c.ExtraContext = router.ViewContext{}
		}
		for k, v := range extra {
			c.ExtraContext[k] = v
		}
		return c
	}
}

// WithControllerSuccessURLs overrides the backend redirects after register and activate
func WithControllerSuccessURLs(register, activate string) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		if register != "" {
			c.RegisterSuccess = URLDestination(register)
		}
		if activate != "" {
			c.ActivateSuccess = URLDestination(activate)
		}
		return c
	}
}

// WithControllerDisallowedURL overrides where closed registrations are sent
func WithControllerDisallowedURL(url string) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		c.Disallowed = URLDestination(url)
		return c
	}
}

// WithControllerFormFactory overrides the registration form of the backend
func WithControllerFormFactory(factory FormFactory[RegistrationForm]) RegistrationControllerOption {
	return func(c *RegistrationController) *RegistrationController {
		c.FormFactory = factory
		return c
	}
}

// NewRegistrationController builds the controller, a Resolver is required
func NewRegistrationController(opts ...RegistrationControllerOption) *RegistrationController {
	c := &RegistrationController{
		Backend:      DefaultBackendName,
		ErrorHandler: defaultErrHandler,
		Redirect:     defaultRedirect,
		Disallowed:   NamedDestination(RouteRegistrationDisallowed),
		Routes: &RegistrationControllerRoutes{
			Register:               "/register",
			RegistrationComplete:   "/register/complete",
			RegistrationDisallowed: "/register/closed",
			Activate:               "/activate",
			ActivationComplete:     "/activate/complete",
		},
		Views: &RegistrationControllerViews{
			Register:               "registration/registration_form",
			RegistrationComplete:   "registration/registration_complete",
			RegistrationDisallowed: "registration/registration_closed",
			Activate:               "registration/activate",
			ActivationComplete:     "registration/activation_complete",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Resolver == nil {
		panic("Missing Resolver in registration controller...")
	}

	if c.Logger == nil {
		_, c.Logger = ResolveLogger("registration.http", nil, nil)
	}

	return c
}

func (c *RegistrationController) RegisterShow(ctx router.Context) error {
	backend, err := c.backend(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if !backend.RegistrationAllowed(ctx.Context()) {
		return c.Redirect(ctx, c.Disallowed)
	}

	form := c.registrationForm(ctx.Context(), backend)

	return ctx.Render(c.Views.Register, c.viewContext(ctx.Context(), router.ViewContext{
		"errors": map[string]string{},
		"record": form,
	}))
}

func (c *RegistrationController) RegisterCreate(ctx router.Context) error {
	backend, err := c.backend(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if !backend.RegistrationAllowed(ctx.Context()) {
		return c.Redirect(ctx, c.Disallowed)
	}

	form := c.registrationForm(ctx.Context(), backend)

	if err := ctx.Bind(form); err != nil {
		c.Logger.Error("register parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(c.Views.Register, c.viewContext(ctx.Context(), router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": form,
		}))
	}

	if err := ValidateForm(ctx.Context(), form); err != nil {
		c.Logger.Debug("register validate payload", "error", err)
		return ctx.Render(c.Views.Register, c.viewContext(ctx.Context(), router.ViewContext{
			"errors":     map[string]string{},
			"validation": FormatValidationErrorToMap(err),
			"record":     form,
		}))
	}

	if c.Debug {
		c.Logger.Debug("registration payload", "payload", print.MaybePrettyJSON(form))
	}

	profile, err := backend.Register(ctx.Context(), c.site(ctx), form.GetEmail())
	if err != nil {
		if errors.Is(err, ErrRegistrationClosed) {
			return c.Redirect(ctx, c.Disallowed)
		}
		c.Logger.Error("register profile", "error", err)
		return ctx.Render(c.Views.Register, c.viewContext(ctx.Context(), router.ViewContext{
			"errors": map[string]string{"form": err.Error()},
			"record": form,
		}))
	}

	dest := c.RegisterSuccess
	if dest.IsZero() {
		dest = backend.PostRegistrationRedirect(ctx.Context(), profile)
	}

	return c.Redirect(ctx, dest)
}

func (c *RegistrationController) ActivateShow(ctx router.Context) error {
	key := ctx.Param(ParamActivationKey)

	backend, err := c.backend(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	var form ActivationForm
	if factory := c.activationForm(ctx.Context(), backend); factory != nil {
		form = factory()
	}

	return ctx.Render(c.Views.Activate, c.viewContext(ctx.Context(), router.ViewContext{
		"errors":         map[string]string{},
		"record":         form,
		"activation_key": key,
	}))
}

// ActivateExecute validates the activation form, when one is configured,
// and activates the key captured from the route.
func (c *RegistrationController) ActivateExecute(ctx router.Context) error {
	key := ctx.Param(ParamActivationKey)

	backend, err := c.backend(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	var form ActivationForm
	if factory := c.activationForm(ctx.Context(), backend); factory != nil {
		form = factory()

		if err := ctx.Bind(form); err != nil {
			c.Logger.Error("activate parse payload", "error", err)
			return flash.WithError(ctx, router.ViewContext{
				"error_message":  err.Error(),
				"system_message": "Error parsing body",
			}).Status(fiber.StatusBadRequest).Render(c.Views.Activate, c.viewContext(ctx.Context(), router.ViewContext{
				"errors":         map[string]string{"form": "Failed to parse form"},
				"record":         form,
				"activation_key": key,
			}))
		}

		if err := ValidateForm(ctx.Context(), form); err != nil {
			return ctx.Render(c.Views.Activate, c.viewContext(ctx.Context(), router.ViewContext{
				"errors":         map[string]string{},
				"validation":     FormatValidationErrorToMap(err),
				"record":         form,
				"activation_key": key,
			}))
		}
	}

	result, err := backend.Activate(ctx.Context(), key, form, c.routeParams(ctx))
	if err != nil {
		c.Logger.Error("activation failed", "error", err)
		return c.ErrorHandler(ctx, err)
	}

	if !result.OK() {
		return ctx.Render(c.Views.Activate, c.viewContext(ctx.Context(), router.ViewContext{
			"errors":         map[string]string{"form": result.Message},
			"record":         form,
			"activation_key": key,
		}))
	}

	dest := c.ActivateSuccess
	if dest.IsZero() {
		dest = backend.PostActivationRedirect(ctx.Context(), result.Account)
	}

	return c.Redirect(ctx, dest)
}

func (c *RegistrationController) RegistrationComplete(ctx router.Context) error {
	return ctx.Render(c.Views.RegistrationComplete, c.viewContext(ctx.Context(), router.ViewContext{}))
}

func (c *RegistrationController) RegistrationDisallowed(ctx router.Context) error {
	return ctx.Render(c.Views.RegistrationDisallowed, c.viewContext(ctx.Context(), router.ViewContext{}))
}

func (c *RegistrationController) ActivationComplete(ctx router.Context) error {
	return ctx.Render(c.Views.ActivationComplete, c.viewContext(ctx.Context(), router.ViewContext{}))
}

func (c *RegistrationController) backend(ctx context.Context) (Backend, error) {
	return c.Resolver.Resolve(ctx, c.Backend, c.ResolveOptions...)
}

func (c *RegistrationController) registrationForm(ctx context.Context, backend Backend) RegistrationForm {
	if c.FormFactory != nil {
		return c.FormFactory()
	}
	if factory := backend.RegistrationFormFactory(ctx); factory != nil {
		return factory()
	}
	return NewBaseRegistrationForm()
}

func (c *RegistrationController) activationForm(ctx context.Context, backend Backend) FormFactory[ActivationForm] {
	if c.ActivationFormFactory != nil {
		return c.ActivationFormFactory
	}
	return backend.ActivationFormFactory(ctx)
}

func (c *RegistrationController) routeParams(ctx router.Context) map[string]any {
	extra := map[string]any{}
	for _, name := range c.RouteParams {
		if name == ParamActivationKey {
			continue
		}
		if v := ctx.Param(name); v != "" {
			extra[name] = v
		}
	}
	return extra
}

func (c *RegistrationController) site(ctx router.Context) Site {
	if site, ok := SiteFromContext(ctx.Context()); ok {
		return site
	}
	if c.Config != nil {
		return SiteFromConfig(c.Config)
	}
	return SiteFromRequest(ctx)
}

func (c *RegistrationController) viewContext(ctx context.Context, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{}
	for k, v := range c.ExtraContext {
		switch fn := v.(type) {
		case func() any:
			out[k] = fn()
		case func(context.Context) any:
			out[k] = fn(ctx)
		default:
			out[k] = v
		}
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func defaultRedirect(ctx router.Context, dest Destination) error {
	if dest.URL != "" {
		return ctx.Redirect(dest.URL, router.StatusSeeOther)
	}

	params := router.ViewContext{}
	for k, v := range dest.Params {
		params[k] = v
	}
	if len(dest.Args) > 0 {
		params["args"] = dest.Args
	}

	return ctx.RedirectToRoute(dest.Name, params, router.StatusSeeOther)
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}

package guard

import (
	"net/http"

	auth "github.com/goliatone/go-cinema-auth"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type Config struct {
	// Controller is required. The guard initializes it lazily.
	Controller *auth.Controller
	// Policy applied to every route behind the middleware.
	Policy auth.Policy
	// Gate defaults to a gate over the controller configuration.
	Gate *auth.Gate
	// Assignment resolves the manager cinema. Without it the profile
	// decides: a manager with no cinema is treated as unassigned.
	Assignment *auth.AssignmentResolver
	// Filter skips the guard when it returns true.
	Filter func(router.Context) bool
	// LoadingHandler answers while the session or assignment is loading.
	LoadingHandler router.HandlerFunc
	// ErrorHandler receives storage failures from initialization.
	ErrorHandler router.ErrorHandler
	// SessionKey is the locals key the session snapshot is stored under.
	SessionKey string
	// CapabilitiesKey is the locals key the capabilities are stored under.
	CapabilitiesKey string
	Logger          auth.Logger
}

func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx, hf)
			}

			if err := cfg.Controller.EnsureInitialized(ctx.Context()); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			session := cfg.Controller.Snapshot()
			route := auth.Route{Path: ctx.Path()}
			switch {
			case session.User == nil:
			case cfg.Assignment == nil:
				route.Assignment = auth.ProfileAssignment(session.User)
			default:
				token := ""
				if pair, ok, err := cfg.Controller.Tokens().Load(ctx.Context()); err == nil && ok {
					token = pair.AccessToken
				}
				route.Assignment = cfg.Assignment.Current(ctx.Context(), session.User, token)
			}

			decision := cfg.Gate.Evaluate(cfg.Policy, session, route)
			cfg.Logger.Debug("guard decision for %s: %s", route.Path, print.MaybePrettyJSON(decision))

			switch decision.Kind {
			case auth.DecisionLoading:
				return cfg.LoadingHandler(ctx)
			case auth.DecisionRedirect:
				if decision.From != "" {
					if err := cfg.Controller.RememberRedirect(ctx.Context(), decision.From); err != nil {
						cfg.Logger.Warn("failed to remember redirect", "error", err)
					}
				}
				return ctx.Redirect(decision.Target)
			}

			ctx.Locals(cfg.SessionKey, session)
			ctx.Locals(cfg.CapabilitiesKey, decision.Capabilities)

			stdCtx := auth.WithController(ctx.Context(), cfg.Controller)
			ctx.SetContext(auth.WithCapabilities(stdCtx, decision.Capabilities))

			return next(ctx, hf)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Controller == nil {
		panic("AUTH: guard middleware configuration: Controller is required.")
	}

	if cfg.Gate == nil {
		cfg.Gate = auth.NewGate(cfg.Controller.Config())
	}

	if cfg.LoadingHandler == nil {
		cfg.LoadingHandler = func(ctx router.Context) error {
			return ctx.NoContent(http.StatusAccepted)
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			return ctx.Status(http.StatusInternalServerError).SendString(auth.ErrorMessage(err))
		}
	}

	if cfg.SessionKey == "" {
		cfg.SessionKey = "session"
	}

	if cfg.CapabilitiesKey == "" {
		cfg.CapabilitiesKey = "capabilities"
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.NoopLogger()
	}

	return cfg
}

func next(ctx router.Context, hf router.HandlerFunc) error {
	if hf != nil {
		return hf(ctx)
	}
	return ctx.Next()
}

package auth

import (
	"io"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

var _ Config = Options{}

// Options is the default Config implementation. Zero values fall back to
// DefaultOptions when passed through WithDefaults.
type Options struct {
	AccessTokenKey       string   `yaml:"access_token_key"`
	RefreshTokenKey      string   `yaml:"refresh_token_key"`
	PendingFlagKey       string   `yaml:"pending_flag_key"`
	BookingSessionPrefix string   `yaml:"booking_session_prefix"`
	RedirectKey          string   `yaml:"redirect_key"`
	SweepMarkers         []string `yaml:"sweep_markers"`
	PhoneRegion          string   `yaml:"phone_region"`

	LoginPath            string   `yaml:"login_path"`
	HomePath             string   `yaml:"home_path"`
	AdminDashboardPath   string   `yaml:"admin_dashboard_path"`
	StaffLandingPath     string   `yaml:"staff_landing_path"`
	ManagerFallbackPath  string   `yaml:"manager_fallback_path"`
	StaffAllowedPrefixes []string `yaml:"staff_allowed_prefixes"`
	ManagerEditPrefixes  []string `yaml:"manager_edit_prefixes"`
}

// DefaultOptions returns the storage keys and routes used by the cinema
// front end.
func DefaultOptions() Options {
	return Options{
		AccessTokenKey:       "accessToken",
		RefreshTokenKey:      "refreshToken",
		PendingFlagKey:       "has_pending_booking",
		BookingSessionPrefix: "booking_session_",
		RedirectKey:          "auth_redirect_path",
		SweepMarkers:         []string{"booking", "payment"},
		PhoneRegion:          "US",

		LoginPath:           "/login",
		HomePath:            "/",
		AdminDashboardPath:  "/admin/dashboard",
		StaffLandingPath:    "/admin/booking",
		ManagerFallbackPath: "/admin/dashboard",
		StaffAllowedPrefixes: []string{
			"/admin/booking",
			"/admin/ticket-scanner",
			"/admin/profile",
			"/admin/change-password",
		},
		ManagerEditPrefixes: []string{
			"/admin/showtimes",
			"/admin/rooms",
		},
	}
}

// WithDefaults fills every empty field from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&o.AccessTokenKey, d.AccessTokenKey)
	fill(&o.RefreshTokenKey, d.RefreshTokenKey)
	fill(&o.PendingFlagKey, d.PendingFlagKey)
	fill(&o.BookingSessionPrefix, d.BookingSessionPrefix)
	fill(&o.RedirectKey, d.RedirectKey)
	fill(&o.PhoneRegion, d.PhoneRegion)
	fill(&o.LoginPath, d.LoginPath)
	fill(&o.HomePath, d.HomePath)
	fill(&o.AdminDashboardPath, d.AdminDashboardPath)
	fill(&o.StaffLandingPath, d.StaffLandingPath)
	fill(&o.ManagerFallbackPath, d.ManagerFallbackPath)
	if len(o.SweepMarkers) == 0 {
		o.SweepMarkers = d.SweepMarkers
	}
	if o.StaffAllowedPrefixes == nil {
		o.StaffAllowedPrefixes = d.StaffAllowedPrefixes
	}
	if o.ManagerEditPrefixes == nil {
		o.ManagerEditPrefixes = d.ManagerEditPrefixes
	}
	return o
}

// LoadConfig reads YAML options, filling missing values with defaults.
func LoadConfig(r io.Reader) (Options, error) {
	var opts Options
	if err := yaml.NewDecoder(r).Decode(&opts); err != nil && err != io.EOF {
		return Options{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode auth config")
	}
	return opts.WithDefaults(), nil
}

func (o Options) GetAccessTokenKey() string       { return o.AccessTokenKey }
func (o Options) GetRefreshTokenKey() string      { return o.RefreshTokenKey }
func (o Options) GetPendingFlagKey() string       { return o.PendingFlagKey }
func (o Options) GetBookingSessionPrefix() string { return o.BookingSessionPrefix }
func (o Options) GetRedirectKey() string          { return o.RedirectKey }
func (o Options) GetSweepMarkers() []string       { return o.SweepMarkers }
func (o Options) GetPhoneRegion() string          { return o.PhoneRegion }
func (o Options) GetLoginPath() string            { return o.LoginPath }
func (o Options) GetHomePath() string             { return o.HomePath }
func (o Options) GetAdminDashboardPath() string   { return o.AdminDashboardPath }
func (o Options) GetStaffLandingPath() string     { return o.StaffLandingPath }
func (o Options) GetManagerFallbackPath() string  { return o.ManagerFallbackPath }
func (o Options) GetStaffAllowedPrefixes() []string {
	return o.StaffAllowedPrefixes
}
func (o Options) GetManagerEditPrefixes() []string {
	return o.ManagerEditPrefixes
}

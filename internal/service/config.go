package service

// PortalConfig describes the portal and its CAS server.
type PortalConfig struct {
	BaseUrl  string `json:"base_url"`
	LoginUrl string `json:"login_url"`
	// Charset of the portal pages, defaults to iso-8859-1. LoginCharset is the same for
	// the CAS login pages, defaults to utf-8. Both only apply when the response
	// Content-Type names no charset.
	Charset                   string   `json:"charset"`
	LoginCharset              string   `json:"login_charset"`
	ExpiredMarkers            []string `json:"expired_markers"`
	InvalidCredentialsMarkers []string `json:"invalid_credentials_markers"`
	Timezone                  string   `json:"timezone"`
}

type AuthConfig struct {
	Username               string `json:"username"`
	Password               string `json:"password"`
	RetryLimit             int    `json:"retry_limit"`
	CookieTtlMinutes       int    `json:"cookie_ttl_minutes"`
	FailureCooldownMinutes int    `json:"failure_cooldown_minutes"`
	TicketCookie           string `json:"ticket_cookie"`
	// RefreshCron is the schedule of the proactive re-authentication in the portal
	// timezone, "-" disables it.
	RefreshCron string `json:"refresh_cron"`
}

type HttpConfig struct {
	TimeoutSeconds   int    `json:"timeout_seconds"`
	UserAgent        string `json:"user_agent"`
	CloudflareBypass bool   `json:"cloudflare_bypass"`
	// DumpDir receives every request/response pair when set, cookie values and
	// passwords are redacted.
	DumpDir string `json:"dump_dir"`
}

type FetchConfig struct {
	BackoffMs int `json:"backoff_ms"`
}

type PaginationConfig struct {
	PageField     string `json:"page_field"`
	PageRetries   int    `json:"page_retries"`
	PageBackoffMs int    `json:"page_backoff_ms"`
}

type ParsersConfig struct {
	TableSelector string `json:"table_selector"`
}

// Config is the part of the configuration shared by every binary that scrapes the portal.
type Config struct {
	Portal     PortalConfig     `json:"portal"`
	Auth       AuthConfig       `json:"auth"`
	Http       HttpConfig       `json:"http"`
	Fetch      FetchConfig      `json:"fetch"`
	Pagination PaginationConfig `json:"pagination"`
	Parsers    ParsersConfig    `json:"parsers"`
}

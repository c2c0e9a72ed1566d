package httpclient

import (
	"net/http"
	"time"

	"sipac-backend/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	// Timeout applies to every request made by the client, defaults to 15 seconds.
	Timeout   time.Duration
	UserAgent string
	// FollowRedirects makes the client follow up to 10 redirects, when false the 3xx
	// response itself is returned to the caller.
	FollowRedirects  bool
	CloudflareBypass bool
	// Dump receives full request/response dumps, it can be nil.
	Dump telemetry.DumpOutput
}

// New creates a resty client for the portal. Cookies are always managed explicitly by the
// caller, so the client does not carry a cookie jar.
func New(opts Options, tel telemetry.API) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 15
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetCookieJar(nil)
	client.SetHeader("user-agent", userAgent)

	if opts.FollowRedirects {
		client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	} else {
		client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	}

	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	telemetry.InstrumentResty(client, tel, opts.Dump)

	return client
}

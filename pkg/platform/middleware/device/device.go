package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"bondgateway/pkg/requestcontext"
)

// Device records the raw User-Agent and a readable device label on the request
// context. Onboarding sessions store the label for support lookups.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithUserAgent(r.Context(), ua)
		ctx = requestcontext.WithDeviceLabel(ctx, Label(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Label returns "Browser on OS" (e.g. "Chrome on Android").
func Label(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" && browser != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

package tagproxy

import (
	"net/http"
	"strings"
)

// PreviewHeader marks a request as belonging to a tag-management preview
// session. Any value counts; only presence matters.
const PreviewHeader = "X-Gtm-Server-Preview"

// Query parameters set by the tag manager's debug mode.
const (
	debugParam      = "gtm_debug"
	debugParamShort = "_dbg"
)

// Cookies planted by a preview session. Matched as substrings of the raw
// Cookie header for compatibility with the signals the tag manager emits.
const (
	authCookie    = "gtm_auth="
	previewCookie = "gtm_preview="
)

// IsPreviewRequest classifies a request as preview when any one of the
// debug query parameters, the preview header, or a preview cookie is
// present. No single signal is required: the debug parameter is spoofable
// and absent on later navigations, so the signals are ORed.
func IsPreviewRequest(r *http.Request) bool {
	query := r.URL.Query()
	if query.Has(debugParam) || query.Has(debugParamShort) {
		return true
	}

	if len(r.Header.Values(PreviewHeader)) > 0 {
		return true
	}

	cookie := r.Header.Get("Cookie")
	if strings.Contains(cookie, authCookie) || strings.Contains(cookie, previewCookie) {
		return true
	}

	return false
}

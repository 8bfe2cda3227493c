package blocklist

import "strings"

// urlIgnoreTrie holds trackers, ad services, and analytics script hosts.
var urlIgnoreTrie = newTrie([]string{
	"https://www.googletagservices.com/tag/",
	"https://js.hs-analytics.net/analytics/",
	"https://js.hsadspixel.net",
	"https://www.google.com/adsense/",
	"https://www.googleadservices.com",
	"https://adservice.google.com",
	"https://www.gstatic.com/cv/js/sender/",
	"https://googleads.g.doubleclick.net",
	"https://www.google-analytics.com",
	"https://www.googletagmanager.com",
	"https://iabusprivacy.pmc.com/geo-info.js",
	"https://cdn.onesignal.com",
	"https://cdn.cookielaw.org/",
	"https://static.doubleclick.net",
	"https://cdn.piano.io",
	"https://px.ads.linkedin.com",
	"https://connect.facebook.net",
	"https://tags.tiqcdn.com",
	"https://tr.snapchat.com",
	"https://ads.twitter.com",
	"https://cdn.segment.com",
	"https://stats.wp.com",
	"https://analytics.",
	"http://analytics.",
	"https://cdn.cxense.com",
	"https://cdn.tinypass.com",
	"https://cd.connatix.com",
	".newrelic.com",
	".googlesyndication.com",
	".amazon-adsystem.com",
	".onetrust.com",
	"sc.omtrdc.net",
	"doubleclick.net",
	"hotjar.com",
	"datadome.com",
	"datadog-logs-us.js",
	"tinypass.min.js",
	".airship.com",
	".adlightning.com",
	"privacy-notice.js",
	"tracking.js",
	"ads.js",
	"https://ads.",
	"http://ads.",
	"https://tracking.",
	"http://tracking.",
	"https://geo.privacymanager.io/",
})

// urlIgnoreXHRTrie holds XHR endpoints for ad delivery and telemetry.
var urlIgnoreXHRTrie = newTrie([]string{
	"https://play.google.com/log?",
	"https://googleads.g.doubleclick.net/pagead/id",
	"https://js.monitor.azure.com/scripts",
	"https://securepubads.g.doubleclick.net",
	"https://pixel-config.reddit.com/pixels",
	"https://www.amazon.com/af/feedback-link?",
	"https://tr.snapchat.com/config/",
	"https://collect.tealiumiq.com/",
	"https://s.yimg.com/wi",
	"https://disney.my.sentry.io/api/",
	"https://www.redditstatic.com/ads",
	"https://buy.tinypass.com/",
	"https://idx.liadm.com",
	"https://geo.privacymanager.io/",
	"https://nimbleplot.com",
	"googlesyndication.com",
	".piano.io/",
	".browsiprod.com",
	".onetrust.com/consent/",
	"https://logs.",
	"/track.php",
})

// urlIgnoreEmbeddedTrie holds embedded players, social widgets, font kits,
// and consent scripts that only matter when rendering visuals.
var urlIgnoreEmbeddedTrie = newTrie([]string{
	"https://www.youtube.com/embed/",
	"https://www.google.com/maps/embed?",
	"https://player.vimeo.com/video/",
	"https://open.spotify.com/embed/",
	"https://w.soundcloud.com/player/",
	"https://platform.twitter.com/embed/",
	"https://www.instagram.com/embed.js",
	"https://www.facebook.com/plugins/",
	"https://cdn.embedly.com/widgets/",
	"https://player.twitch.tv/",
	"https://insight.adsrvr.org/track/",
	"cxense.com/",
	"https://tr.snapchat.com/",
	"https://buy.tinypass.com",
	"https://nimbleplot.com/",
	"https://kit.fontawesome.com/",
	"https://use.typekit.net",
	"https://cdn.tailwindcss.com",
	"https://googleads.g.doubleclick.net",
	"amazon-adsystem.com",
	"g.doubleclick.net",
	"googlesyndication.com",
	"adsafeprotected.com",
	".googlesyndication.com/safeframe/",
	"/ccpa/user-consent.min.js",
	"privacy-notice.js",
})

// urlIgnoreXHRMediaTrie holds streaming/media player API endpoints.
var urlIgnoreXHRMediaTrie = newTrie([]string{
	"https://www.youtube.com/s/player/",
	"https://www.vimeo.com/player/",
	"https://soundcloud.com/player/",
	"https://open.spotify.com/",
	"https://api.spotify.com/v1/",
	"https://music.apple.com/",
})

// jsFrameworkAllowNames lists framework and app bundle file names that must
// load even when javascript blocking is on; matched against the URL's last
// path segment.
var jsFrameworkAllowNames = map[string]struct{}{
	"jquery.min.js":               {},
	"jquery.qtip.min.js":          {},
	"jquery.js":                   {},
	"angular.js":                  {},
	"jquery.slim.js":              {},
	"react.development.js":        {},
	"react-dom.development.js":    {},
	"react.production.min.js":     {},
	"react-dom.production.min.js": {},
	"vue.global.js":               {},
	"vue.esm-browser.js":          {},
	"vue.js":                      {},
	"bootstrap.min.js":            {},
	"bootstrap.bundle.min.js":     {},
	"bootstrap.esm.min.js":        {},
	"d3.min.js":                   {},
	"d3.js":                       {},
	"app.js":                      {},
	"main.js":                     {},
	"index.js":                    {},
}

// jsFrameworkAllowURLs lists verified third-party URLs needed for checkout
// and bot challenges; matched as URL prefixes.
var jsFrameworkAllowURLs = []string{
	"https://m.stripe.network/inner.html",
	"https://m.stripe.network/out-4.5.43.js",
	"https://challenges.cloudflare.com/turnstile",
	"https://js.stripe.com/v3/",
}

// xhrAssetExtensions are visual asset extensions checked (case-insensitively)
// on XHR request paths when only HTML is wanted.
var xhrAssetExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "svg": {}, "webp": {},
	"mp4": {}, "avi": {}, "mov": {}, "wmv": {}, "flv": {},
	"mp3": {}, "wav": {}, "ogg": {},
	"woff": {}, "woff2": {}, "ttf": {}, "otf": {},
	"swf": {}, "xap": {},
	"ico": {}, "eot": {},
}

// analyticsSuffixes are script file names treated as trackers regardless of
// their host.
var analyticsSuffixes = []string{
	"analytics.js",
	"ads.js",
	"tracking.js",
	"track.js",
}

// IgnoreScript reports whether the URL is a tracker or analytics script.
func IgnoreScript(url string) bool {
	if urlIgnoreTrie.ContainsPrefix(url) {
		return true
	}
	for _, suffix := range analyticsSuffixes {
		if strings.HasSuffix(url, suffix) {
			return true
		}
	}
	return false
}

// IgnoreScriptEmbedded reports whether the URL is an embedded player, social
// widget, or other visual-only script.
func IgnoreScriptEmbedded(url string) bool {
	return urlIgnoreEmbeddedTrie.ContainsPrefix(url)
}

// IgnoreScriptXHR reports whether the URL is a tracking XHR endpoint.
func IgnoreScriptXHR(url string) bool {
	return urlIgnoreXHRTrie.ContainsPrefix(url)
}

// IgnoreScriptXHRMedia reports whether the URL is a media player XHR endpoint.
func IgnoreScriptXHRMedia(url string) bool {
	return urlIgnoreXHRMediaTrie.ContainsPrefix(url)
}

// JSFrameworkAllowed reports whether the script URL is on the framework
// allowlist and must load even under javascript blocking. File entries match
// the URL's last path segment; third-party entries match as prefixes.
func JSFrameworkAllowed(url string) bool {
	name := url
	if idx := strings.LastIndexByte(name, '?'); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if _, ok := jsFrameworkAllowNames[name]; ok {
		return true
	}
	for _, prefix := range jsFrameworkAllowURLs {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// VisualAssetExtension reports whether ext (without the dot) names a visual
// asset type. The check is case-insensitive.
func VisualAssetExtension(ext string) bool {
	_, ok := xhrAssetExtensions[strings.ToLower(ext)]
	return ok
}

// CSSExtension reports whether ext (without the dot) is a stylesheet
// extension. The check is case-insensitive.
func CSSExtension(ext string) bool {
	return strings.Contains(strings.ToLower(ext), "css")
}

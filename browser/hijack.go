package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// trackerDomains are analytics and session-replay hosts the target site
// embeds. None of them serve content the pipeline reads.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googleadservices.com":  {},
	"googlesyndication.com": {},
	"facebook.net":          {},
	"connect.facebook.net":  {},
	"hotjar.com":            {},
	"clarity.ms":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"segment.com":           {},
	"amplitude.com":         {},
	"fullstory.com":         {},
	"intercom.io":           {},
	"intercomcdn.com":       {},
	"tiktok.com":            {},
	"analytics.tiktok.com":  {},
}

// isTrackerDomain checks if a hostname (or any parent domain) is in the blocklist.
func isTrackerDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := trackerDomains[host]; ok {
		return true
	}
	// "ssl.google-analytics.com" → "google-analytics.com"
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := trackerDomains[host]; ok {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor on the page that blocks the
// configured resource types and, optionally, tracker domains.
//
// Scripts are never blocked: the question payloads are logged by the
// site's own bundle.
//
// Returns the running HijackRouter so the caller can stop it on close.
// Returns nil if there is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string, blockTrackers bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockTrackers {
		return nil
	}

	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if blockTrackers {
			if u, err := url.Parse(ctx.Request.URL().String()); err == nil {
				if isTrackerDomain(u.Hostname()) {
					ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
					return
				}
			}
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router
}

// Package scraper resolves Instagram post URLs into downloadable media.
//
// The Orchestrator is the single entry point:
//
//	orch := scraper.New(cfg, apify.NewClient(cfg.Apify, log), log)
//	resp := orch.FetchMedia(ctx, "https://www.instagram.com/p/abc123/?utm_source=ig")
//	if resp.Err != nil {
//	    // resp.Err.Code and resp.Err.StatusHint describe the failure
//	}
//
// A request flows through these steps:
//   - the URL is validated and canonicalized; a rejected URL touches nothing else
//   - a cache hit returns at once and does not consume rate-limit quota
//   - otherwise the fixed-window limiter is consulted
//   - the backend is called inside the retry loop, the only place it is called
//   - the first record is normalized, cached and returned
//
// Concurrent requests for the same canonical URL share one backend call.
package scraper

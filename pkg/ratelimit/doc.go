// Package ratelimit provides the limiters used by the service.
//
// FixedWindow guards calls to the scraping backend with two independent windows,
// 60 seconds and 3600 seconds, each with its own ceiling. Windows rotate lazily on
// the next call once their length has elapsed. A request is counted in both windows
// or in neither.
//
//	limiter := ratelimit.NewFixedWindow(10, 100)
//	if d := limiter.CheckAndReserve(); !d.Allowed {
//	    return errors.RateLimited(d.Reason)
//	}
//
// ClientLimiter keeps a token bucket per client key for the HTTP layer, and Steady
// smooths outbound media downloads. Both sit on golang.org/x/time/rate.
package ratelimit

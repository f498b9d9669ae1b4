// Package retry wraps calls to the scraping backend with bounded exponential backoff.
//
// Without RetryIf the loop retries every failure until the attempt budget is
// spent; classifying a backend failure happens afterwards, for reporting only.
// Between attempt n and n+1 it sleeps BaseDelay * 2^(n-1), so the defaults give
// 1s then 2s. Nothing sleeps after the last attempt, and the last error comes back
// unwrapped.
//
//	posts, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]apify.RawPost, error) {
//		return client.FetchPosts(ctx, url)
//	}, retry.DefaultConfig())
//
// Media downloads narrow the loop with RetryIf so a 404 from the CDN is final,
// and cap and jitter their backoff.
package retry

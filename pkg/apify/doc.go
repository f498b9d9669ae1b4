// Package apify talks to the Apify platform, which does the actual Instagram scraping.
//
// A lookup is two calls: start the Instagram scraper actor with the post URL and
// wait for it to finish, then read the run's default dataset.
//
//	client := apify.NewClient(cfg.Apify, log)
//	posts, err := client.FetchPosts(ctx, "https://www.instagram.com/p/abc123/")
//
// Failures come back as *apify.Error. Their messages include the HTTP status or
// words such as "timeout" and "network error" so the orchestrator can classify them.
package apify

// Package crawler implements the site-mirroring engine: fetch-with-retry, link
// extraction, path mapping, scope classification and the crawl loop that ties
// them together over a single-threaded FIFO frontier.
package crawler

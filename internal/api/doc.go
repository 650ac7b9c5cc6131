// Package api hosts the HTTP query interface over a built index. Routes:
//   - GET /healthz and /readyz for probes; readyz fails until an index is set.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/search?q=...&limit=... for ranked results as JSON.
package api

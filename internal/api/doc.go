// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sources/search to discover candidate checklist sources.
//   - POST /v1/sources/import and /v1/sources/upload to queue ingestion jobs.
//   - POST /v1/sources/parse to dry-run an uploaded file.
//   - GET /v1/jobs/{job_id} to read a queued job back.
package api

// Package main hosts the ingestion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, discovery, import, upload, dry-run parse and job
//     lookup endpoints. Errors carry a kind that maps onto the response status.
//   - Fetch pipeline: a Colly-based fetcher sits behind a per-host throttle (minimum gap between requests to one
//     host) and a retry policy with capped exponential backoff. Every attempt is counted in Prometheus.
//   - Parsing: internal/source sniffs the payload (PDF, JSON, CSV, Markdown, HTML) and runs a first-match parser
//     chain. HTML pages with no rows get one hop of checklist link following, PDFs first.
//   - Persistence & fanout: each import upserts the set's draft and inserts one QUEUED ingestion job in a single
//     transaction (memory, SQLite or Postgres). The raw source is archived to the BlobStore (memory or GCS) and a
//     job queued event is published to Pub/Sub when a project is configured.
//   - Configuration & plumbing: Viper populates config from file and SETOPS_* env; zap provides structured logging.
//
// Quick checklist:
//   - Configure env vars: SETOPS_SERVER_PORT or PORT, SETOPS_STORAGE_DRIVER and SETOPS_STORAGE_DSN,
//     SETOPS_STORAGE_ARCHIVE_BUCKET, SETOPS_PUBSUB_PROJECT_ID, SETOPS_AUTH_ENABLED and SETOPS_AUTH_API_KEY.
//   - Run locally: go run ./cmd/setops-server -config setops.yaml, or go run . serve.
package main

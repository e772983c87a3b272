// Package maintenance runs regimen's background jobs on cron triggers:
//
//   - a backfill sweep that walks every known user and materializes
//     missing horizon dates (rate-limited so a large user base doesn't
//     monopolize the storage backend)
//   - an insights refresh that re-mines completion history into
//     suggestions and caches them for the read path
//
// The service can be started/stopped at runtime (e.g. via config hot
// reload); Apply() restarts the cron entries when specs change.
package maintenance

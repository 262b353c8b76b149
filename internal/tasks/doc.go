// Package tasks runs long library operations against the active Subsonic server with real-time
// progress reporting.
//
// # Operations
//
// [Engine] offers three operations:
//
//  1. [Engine.PrefetchArtwork] : warm cover art
//     - Downloads covers through the signing transport, so every request is authenticated
//     - Worker pool bounded by a [rate.Limiter]; individual failures are recorded, not fatal
//     - Optionally saves covers to a directory
//
//  2. [Engine.BulkExport] : export playlists to disk
//     - Fetches each playlist under the limiter and writes json, csv, markdown or txt
//     - Writes export_manifest.json summarizing successes and failures
//
//  3. [Engine.Dump] : raw responses of the main library endpoints for debugging
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates. [ProgressUpdate] carries the phase,
// step counters, a message and optional data. Sends use select with default so a slow reader never
// stalls a task.
//
// # Server Resolution
//
// Each operation resolves the active server's client once when it starts and keeps using it. Artwork is
// signed by the transport for the server active at request time, so covers requested after a switch fail
// with a malformed path error instead of reaching the wrong server.
package tasks

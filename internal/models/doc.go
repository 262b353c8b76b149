// Package models defines domain entities and persistence interfaces for the subx Subsonic client.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight value types built from Subsonic list responses
//   - [Track] : Song metadata with raw (unsigned) stream and artwork paths
//   - [Album] : Album summary used by the paginated album browser
//   - [Playlist] : Playlist summary, optionally with its tracks
//   - [Artist] : Artist with a discography of [Album] values
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [ServerProfile] : A saved server (base URL, credentials, label) with the active flag
//
// Persistent entities implement the [Model] interface providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models

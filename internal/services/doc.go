// Package services implements the [Library] interface against Subsonic-family servers and resolves
// the client for the active server.
//
// # Subsonic Client
//
// [SubsonicClient] is bound to one server profile. Every request is signed by [auth.Signer] with a fresh
// salt, passes a shared [rate.Limiter] and decodes the "subsonic-response" envelope.
//
// # Provider
//
// [Provider] is the single access point for "the client to use right now". It resolves lazily, coalesces
// concurrent resolutions through a [singleflight.Group] and drops its cached client whenever the registry
// publishes an event. Clients handed out before a switch keep working against their old server.
//
// # Transport
//
// [Transport] runs an ordered [Pipeline] of request rewrites before each round trip:
//   - strip-cache-headers : removes inbound cache directives
//   - artwork-cache-policy : forces [ArtworkCacheControl] on getCoverArt requests
//   - sign-url : replaces the URL with its signed form via [Provider.AppendAuth]
//
// Signing is always last so the token is part of the final URL.
//
// # Error Handling
//
// Errors wrap sentinels from the shared package:
//   - [shared.ErrNoActiveServer] : no server is configured or active
//   - [shared.ErrNetwork] : transport failure or 5xx status
//   - [shared.ErrAuthFailed] : Subsonic error 40, 41 or 50
//   - [shared.ErrNotFound] : Subsonic error 70
//   - [shared.ErrAPIRequest] : any other failed response
//
// [shared.ErrNoActiveServer] is never wrapped as [shared.ErrNetwork].
package services

// Package server provides HTTP routing, middleware, the JSON API and OAuth glue for keyfinder.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [WithRequestID], [WithLogging] and [WithRecover] are the stock middleware used by `keyfinder serve`.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so path wildcards such as
// "/api/keys/{id}" are read with [http.Request.PathValue].
//
// # API
//
// [API] exposes the key pipeline and Spotify data:
//
//	GET /healthz
//	GET /api/keys/{id}              cache first; 401 without credential cookies; 404 when unresolved
//	GET /api/audio-features?ids=a,b
//	GET /api/audio-features/{id}
//	GET /api/playlists
//	GET /api/playlists/{id}/tracks  ?keys=1 also resolves keys
//	GET /api/me
//
// Credential inputs come from the `user_id` cookie (or the older `spotifyId`) and the
// `access_token` cookie. See [CredentialInputs].
//
// # OAuth
//
// [OAuthHandler] serves the one-shot callback of `keyfinder auth login`: a temporary server on the
// redirect URI's host handles the callback and shuts down after receiving the token.
//
// [WebAuth] serves /auth/login and /auth/callback for browsers and binds the refresh token to the
// user's Spotify id.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server

// Package api describes the upstream streaming and REST endpoints.
//
// Stream endpoints (one base URL per category):
//   - public: https://stream.twitter.com/1.1
//   - user:   https://userstream.twitter.com/1.1
//   - site:   https://sitestream.twitter.com/1.1
//
// REST endpoint:
//   - https://api.twitter.com/1.1
//
// Request parameters are form encoded. List values are sent comma-joined and
// booleans as "true"/"false" so that signatures match the encoded body.
package api

// Package security screens inbound requests and decorates outbound
// responses.
//
// The Manager bundles three independently configured concerns:
//
//   - CORS: preflight short-circuiting and response header grants,
//     with exact, wildcard and regex origin allow-lists.
//   - Response headers: HSTS, Content-Security-Policy, frame and
//     content-type options, Permissions-Policy and operator-defined
//     custom headers.
//   - Screening: typed violations for oversized bodies, suspicious
//     user agents, blocked or unlisted client IPs and path attack
//     signatures.
//
// Origin patterns, user-agent patterns and IP lists are compiled once
// at construction; a malformed pattern surfaces as a constructor
// error. Screening is advisory: it returns the violations it found
// and Blocked tells the caller whether they warrant rejecting the
// request.
package security

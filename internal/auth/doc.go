// Package auth verifies request credentials and resolves them into an
// identity. It supports API keys, HMAC-signed bearer tokens, and HTTP
// basic credentials, with per-client failure lockout and an optional
// CEL authorization policy evaluated after authentication.
package auth

// Package auth issues and validates the bearer tokens that guard the
// accessory API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. The subject names
// the calling integration (for example "homebridge"). Expiry is enforced
// when present; long-lived integration tokens may omit it.
package auth

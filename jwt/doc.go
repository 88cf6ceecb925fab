// Package jwt issues and validates the HS256 bearer tokens returned by a
// successful login. Validation is pure: signature, expiry, and subject are
// checked without any store round-trip.
package jwt

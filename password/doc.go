// Package password hashes credentials with argon2id and verifies them in
// constant time. Hashes are stored in PHC string format so parameters can
// be raised without invalidating existing credentials.
package password

// Package password hashes and verifies huddle account passwords with Argon2id.
//
// Hashes use the PHC string format
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
//
// and are treated as untrusted input on Verify: cost parameters far above the
// configured ones are refused instead of computed.
package password

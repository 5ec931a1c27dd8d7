// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsRehash] reports when a stored hash was produced with weaker
// parameters than the current configuration so callers can re-hash after the
// next successful login. [Argon2.Burn] spends the same work as a real
// verification and is used when a login names an unknown account.
package password

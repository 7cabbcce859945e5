// Package security seals data the daemon keeps at rest.
//
// The applied manifest is persisted so the daemon can restore it after a
// restart, and it carries pre-shared keys and RSA private keys. SealManifests
// wraps a storage.Store so the manifest bucket only ever holds AES-256-GCM
// ciphertext:
//
//	key, err := security.LoadOrCreateKey(filepath.Join(dataDir, "manifest.key"))
//	sealer, err := security.NewSealer(key)
//	store = security.SealManifests(store, sealer)
//
// Each Seal call uses a fresh random nonce, prepended to the ciphertext.
// Losing the key file makes the stored manifest unreadable; the daemon then
// starts without restoring and the next apply replaces it.
package security

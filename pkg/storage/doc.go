/*
Package storage persists the daemon's observed state in a bbolt database.

	<data_dir>/ipsecd.db
	├── stats/      "<kind>/<key>" -> latest StatSnapshot (JSON)
	├── errors/     sequence (big endian) -> IPsecError (JSON)
	└── manifests/  "current" -> last applied manifest (YAML, sealed)

The stats bucket holds one sample per subscribed object and is overwritten on
every publish. BoltStore.Publish lets the store act directly as a publisher
sink.

The errors bucket is append-only with bounded retention: once it holds more
than the configured maximum, the oldest records are pruned in the same
transaction. ListErrors walks the bucket backwards so the newest error comes
first.

The manifest bucket keeps the last manifest applied through the API so the
daemon can restore its configuration after a restart. Wrap the store with
security.SealManifests to keep the secrets it contains encrypted.
*/
package storage

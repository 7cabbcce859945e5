package security

import (
	"fmt"

	"github.com/cuemby/ipsecd/pkg/storage"
)

// SealedStore encrypts the persisted manifest, which carries pre-shared
// keys and private keys. Statistics and errors pass through unchanged.
type SealedStore struct {
	storage.Store
	sealer *Sealer
}

// SealManifests wraps store so manifests are sealed before they are saved
func SealManifests(store storage.Store, sealer *Sealer) *SealedStore {
	return &SealedStore{Store: store, sealer: sealer}
}

// SaveManifest seals data and saves it
func (s *SealedStore) SaveManifest(data []byte) error {
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to seal manifest: %w", err)
	}
	return s.Store.SaveManifest(sealed)
}

// GetManifest loads and opens the saved manifest
func (s *SealedStore) GetManifest() ([]byte, error) {
	sealed, err := s.Store.GetManifest()
	if err != nil {
		return nil, err
	}

	data, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	return data, nil
}

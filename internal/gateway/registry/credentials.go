package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaygate/relaygate/internal/common/apperrors"
)

// credentialPath returns the path of the credential blob file for id.
func (s *Store) credentialPath(id string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("session-%s.json", id))
}

// SaveBlob persists the opaque credential blob for id, overwriting any
// previous blob.
func (s *Store) SaveBlob(id string, blob []byte) apperrors.Error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	if err := os.WriteFile(s.credentialPath(id), blob, 0600); err != nil {
		return ErrCredentialIO.MsgErr("unable to write credential blob", err)
	}
	return nil
}

// LoadBlob returns the credential blob for id, or nil if the session has
// never authenticated.
func (s *Store) LoadBlob(id string) ([]byte, apperrors.Error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.credentialPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ErrCredentialIO.MsgErr("unable to read credential blob", err)
	}
	return data, nil
}

// DeleteBlob removes the credential blob for id. A missing blob is not an
// error.
func (s *Store) DeleteBlob(id string) apperrors.Error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	if err := os.Remove(s.credentialPath(id)); err != nil && !os.IsNotExist(err) {
		return ErrCredentialIO.MsgErr("unable to delete credential blob", err)
	}
	return nil
}

// HasBlob reports whether a credential blob exists for id.
func (s *Store) HasBlob(id string) bool {
	_, err := os.Stat(s.credentialPath(id))
	return err == nil
}

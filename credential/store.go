package credential

import (
	"os"
	"path/filepath"
)

// DefaultFileName is the name of the credential file in the data directory.
const DefaultFileName = "magma.token"

// Store persists a single credential.
type Store interface {
	// Credential returns the stored credential or ErrNoCredential.
	Credential() (*Credential, error)

	// StoreCredential replaces the stored credential.
	StoreCredential(*Credential) error
}

// FileStore is a Store that keeps the credential in a single file.
type FileStore struct {
	fileName string
}

// A compile-time flag to ensure that FileStore implements the Store interface.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a file based store. The directory of the file is
// created if it doesn't exist.
func NewFileStore(fileName string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(fileName), 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		fileName: fileName,
	}, nil
}

// Credential returns the stored credential.
//
// NOTE: This is part of the Store interface.
func (f *FileStore) Credential() (*Credential, error) {
	b, err := os.ReadFile(f.fileName)
	switch {
	case os.IsNotExist(err):
		return nil, ErrNoCredential

	case err != nil:
		return nil, err
	}

	return deserializeCredential(b)
}

// StoreCredential writes the credential to a temporary file next to the
// credential file and renames it, so readers never see a partial file.
//
// NOTE: This is part of the Store interface.
func (f *FileStore) StoreCredential(cred *Credential) error {
	b, err := serializeCredential(cred)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(
		filepath.Dir(f.fileName), filepath.Base(f.fileName)+".tmp-*",
	)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Remove the temporary file on any failure below. After a successful
	// rename this is a no-op.
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, f.fileName)
}

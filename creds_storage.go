package tdauth

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/rusq/encio"
)

// credsStorage keeps the API credentials in an encrypted file, so that they
// don't have to be entered on each run.
type credsStorage struct {
	filename string
}

var errEmptyCreds = errors.New("empty credentials")

// creds is the structure of data in the storage.
type creds struct {
	ID   int    `json:"api_id,omitempty"`
	Hash string `json:"api_hash,omitempty"`
}

func (c creds) IsEmpty() bool {
	return c.ID <= 0 || c.Hash == ""
}

// IsAvailable returns true if the credentials filename is set.
func (cs credsStorage) IsAvailable() bool {
	return cs.filename != ""
}

// Save writes the credentials to the file, creating the directory if needed.
func (cs credsStorage) Save(c creds) error {
	if c.IsEmpty() {
		return errEmptyCreds
	}
	if err := os.MkdirAll(filepath.Dir(cs.filename), 0o700); err != nil {
		return err
	}
	f, err := encio.Create(cs.filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return cs.write(f, c)
}

func (cs credsStorage) write(w io.Writer, c creds) error {
	return json.NewEncoder(w).Encode(c)
}

func (cs credsStorage) Load() (creds, error) {
	f, err := encio.Open(cs.filename)
	if err != nil {
		return creds{}, err
	}
	defer f.Close()

	return cs.read(f)
}

func (cs credsStorage) read(r io.Reader) (creds, error) {
	var cr creds
	if err := json.NewDecoder(r).Decode(&cr); err != nil {
		return creds{}, err
	}
	return cr, nil
}

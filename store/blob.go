package store

import (
	"bytes"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/tabular"
)

// encodeBlob renders the table through the codec and returns the raw bytes
// with their digest.
func encodeBlob(codec tabular.Codec, tbl *tabular.Table) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := codec.Encode(&buf, tbl); err != nil {
		return nil, "", err
	}
	blob := buf.Bytes()
	return blob, digestBytes(blob), nil
}

func decodeBlob(codec tabular.Codec, blob []byte) (*tabular.Table, error) {
	return codec.Decode(bytes.NewReader(blob))
}

// WriteBlob lands the blob at address atomically: the bytes go to a temp
// file in the destination directory first and the rename happens last, so a
// reader never observes a half-written artifact. Put writes through here,
// as do the side-tree writers that place unindexed artifacts (snapshots,
// excerpt projections).
func WriteBlob(fs billy.Filesystem, address string, blob []byte) error {
	dir := path.Dir(address)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating artifact directory %q", dir)
	}

	tmp, err := fs.TempFile(dir, ".causeway-put-")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %q", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return errors.Wrapf(err, "writing temp blob %q", tmpName)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return errors.Wrapf(err, "closing temp blob %q", tmpName)
	}

	if err := fs.Rename(tmpName, address); err != nil {
		fs.Remove(tmpName)
		return errors.Wrapf(err, "renaming temp blob into place at %q", address)
	}
	return nil
}

func readBlob(fs billy.Filesystem, address string) ([]byte, error) {
	f, err := fs.Open(address)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("blob missing at %q", address)
		}
		return nil, errors.Wrapf(err, "opening blob %q", address)
	}
	defer f.Close()

	blob, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading blob %q", address)
	}
	return blob, nil
}

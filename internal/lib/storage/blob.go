package storage

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// BlobFactory returns a Factory for an on-disk blob backend rooted at
// directory. Entries live at
// <directory>/<fn_dir>/<fn_hash>/<call_hash[:2]>/<call_hash[2:]>.blob
// per spec.md §6 "Persistent state layout". Passing a non-nil fs lets
// callers substitute an in-memory afero filesystem for tests without
// touching disk (grounded in the pack's granular.Cache, which takes the
// same WithFs-style option).
func BlobFactory(directory string, fs afero.Fs) Factory {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return func(ref Ref) (Storage, error) {
		return &blobStorage{root: directory, fs: fs, ref: ref}, nil
	}
}

type blobStorage struct {
	root string
	fs   afero.Fs
	ref  Ref
}

func (b *blobStorage) fnRoot(fnHash string) string {
	return filepath.Join(b.root, b.ref.FnDir, fnHash)
}

func (b *blobStorage) path(fnHash, callHash string) (string, error) {
	if len(callHash) < 2 {
		return "", ErrNotFound
	}
	return filepath.Join(b.fnRoot(fnHash), callHash[:2], callHash[2:]+".blob"), nil
}

func (b *blobStorage) currentPath(callHash string) (string, error) {
	fh, err := b.ref.FnHash()
	if err != nil {
		return "", err
	}
	return b.path(fh, callHash)
}

// Store writes data via a temp-file-then-rename sequence so concurrent
// readers never observe a partial write (spec.md §5 "write-then-rename").
func (b *blobStorage) Store(callHash string, data []byte) ([]byte, error) {
	path, err := b.currentPath(callHash)
	if err != nil {
		return nil, err
	}
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	tmp := path + ".tmp"
	f, err := b.fs.Create(tmp)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = b.fs.Remove(tmp)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if err := b.fs.Rename(tmp, path); err != nil {
		return nil, err
	}
	return data, nil
}

func (b *blobStorage) Exists(callHash string) (bool, error) {
	path, err := b.currentPath(callHash)
	if err != nil {
		return false, err
	}
	_, err = b.fs.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *blobStorage) Load(callHash string) ([]byte, error) {
	path, err := b.currentPath(callHash)
	if err != nil {
		return nil, err
	}
	f, err := b.fs.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, ErrCorrupt
	}
	if len(data) == 0 {
		// a zero-byte file is the signature of a truncated/corrupted write
		// (spec.md §8 scenario 6).
		return nil, ErrCorrupt
	}
	return data, nil
}

func (b *blobStorage) Delete(callHash string) error {
	path, err := b.currentPath(callHash)
	if err != nil {
		return err
	}
	err = b.fs.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *blobStorage) CheckpointDate(callHash string) (time.Time, error) {
	path, err := b.currentPath(callHash)
	if err != nil {
		return time.Time{}, err
	}
	info, err := b.fs.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (b *blobStorage) Expired(callHash string, expiry *Expiry) (bool, error) {
	if expiry == nil {
		return false, nil
	}
	t, err := b.CheckpointDate(callHash)
	if err != nil {
		return false, nil
	}
	return expiry.Expired(t), nil
}

// Cleanup removes sibling <fn_hash> directories when invalidated is true,
// and sweeps individual blobs whose checkpoint date satisfies expiry when
// expiredSweep is true, pruning now-empty fan-out directories afterward
// (spec.md §4.7).
func (b *blobStorage) Cleanup(invalidated, expiredSweep bool, expiry *Expiry) error {
	fnDir := filepath.Join(b.root, b.ref.FnDir)
	currentFnHash, err := b.ref.FnHash()
	if err != nil {
		return err
	}

	if invalidated {
		entries, err := afero.ReadDir(b.fs, fnDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() && e.Name() != currentFnHash {
				if err := b.fs.RemoveAll(filepath.Join(fnDir, e.Name())); err != nil {
					return err
				}
			}
		}
	}

	if expiredSweep && expiry != nil {
		root := b.fnRoot(currentFnHash)
		prefixes, err := afero.ReadDir(b.fs, root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, prefix := range prefixes {
			if !prefix.IsDir() {
				continue
			}
			prefixPath := filepath.Join(root, prefix.Name())
			blobs, err := afero.ReadDir(b.fs, prefixPath)
			if err != nil {
				continue
			}
			for _, blob := range blobs {
				if expiry.Expired(blob.ModTime()) {
					_ = b.fs.Remove(filepath.Join(prefixPath, blob.Name()))
				}
			}
			if remaining, _ := afero.ReadDir(b.fs, prefixPath); len(remaining) == 0 {
				_ = b.fs.Remove(prefixPath)
			}
		}
	}
	return nil
}

// Clear removes every entry for this function across all fn_hash versions.
func (b *blobStorage) Clear() error {
	fnDir := filepath.Join(b.root, b.ref.FnDir)
	err := b.fs.RemoveAll(fnDir)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

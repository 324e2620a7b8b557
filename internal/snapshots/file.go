package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/isdelr/records-be/internal/models"
	"github.com/rs/zerolog/log"
)

const fileExtension = ".json"

// FileStore writes each snapshot as <root>/<id>.json. A file name is claimed
// with a hard link, so once written a snapshot is never replaced.
type FileStore struct {
	root string
	now  func() time.Time
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("snapshots: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("snapshots: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("snapshots: create root: %w", err)
	}
	return &FileStore{root: abs, now: time.Now}, nil
}

// Root returns the absolute directory snapshots are written to.
func (f *FileStore) Root() string {
	return f.root
}

// resolve maps a caller-supplied id to a file inside the root. Any directory
// component is discarded so the result can never escape the root.
func (f *FileStore) resolve(id string) (path, stem string, ok bool) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(id, "\\", "/")))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", "", false
	}
	if !strings.HasSuffix(name, fileExtension) {
		name += fileExtension
	}
	stem = strings.TrimSuffix(name, fileExtension)
	if stem == "" || stem == "." || stem == ".." {
		return "", "", false
	}

	path = filepath.Join(f.root, name)
	if filepath.Dir(path) != f.root {
		return "", "", false
	}
	return path, stem, true
}

// Write serializes the snapshot to a temp file and links it into place.
// A caller-supplied id is kept after sanitizing; otherwise one is generated.
func (f *FileStore) Write(_ context.Context, snap models.Snapshot) (models.WriteResult, error) {
	stored := snap.Clone()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = f.now().UTC()
	}

	var (
		path string
		ok   bool
	)
	if stored.ID != "" {
		path, stored.ID, ok = f.resolve(stored.ID)
		if !ok {
			return models.WriteResult{}, fmt.Errorf("snapshots: invalid snapshot id %q", snap.ID)
		}
	} else {
		stored.ID = newID(stored.Timestamp)
		path, _, _ = f.resolve(stored.ID)
	}

	if _, err := os.Stat(path); err == nil {
		return models.WriteResult{}, fmt.Errorf("snapshots: snapshot %s already exists", stored.ID)
	}
	// The check above only fails fast; the link below is what claims the name.

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return models.WriteResult{}, fmt.Errorf("snapshots: encode: %w", err)
	}

	tmp, err := os.CreateTemp(f.root, "."+stored.ID+"-*.tmp")
	if err != nil {
		return models.WriteResult{}, fmt.Errorf("snapshots: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return models.WriteResult{}, fmt.Errorf("snapshots: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return models.WriteResult{}, fmt.Errorf("snapshots: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.WriteResult{}, fmt.Errorf("snapshots: close: %w", err)
	}
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return models.WriteResult{}, fmt.Errorf("snapshots: snapshot %s already exists", stored.ID)
		}
		return models.WriteResult{}, fmt.Errorf("snapshots: link: %w", err)
	}

	return models.WriteResult{
		ID:        stored.ID,
		Timestamp: stored.Timestamp,
		SizeBytes: int64(len(data)),
	}, nil
}

// snapshotHeader is the subset of a snapshot decoded while listing.
type snapshotHeader struct {
	Timestamp time.Time                `json:"timestamp"`
	Kind      string                   `json:"kind"`
	Metadata  *models.SnapshotMetadata `json:"metadata"`
}

// List enumerates the root directory. Files whose contents cannot be parsed
// are still listed, ordered by modification time.
func (f *FileStore) List(_ context.Context) ([]models.SnapshotInfo, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("snapshots: read root: %w", err)
	}

	infos := make([]models.SnapshotInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Warn().Err(err).Str("file_name", name).Msg("Could not stat snapshot file")
			continue
		}

		info := models.SnapshotInfo{
			ID:        strings.TrimSuffix(name, fileExtension),
			Timestamp: fi.ModTime().UTC(),
			SizeBytes: fi.Size(),
		}
		if hdr, ok := f.readHeader(filepath.Join(f.root, name)); ok {
			if !hdr.Timestamp.IsZero() {
				info.Timestamp = hdr.Timestamp
			}
			info.Kind = hdr.Kind
			info.Metadata = hdr.Metadata
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Timestamp.Equal(infos[j].Timestamp) {
			return infos[i].ID > infos[j].ID
		}
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

func (f *FileStore) readHeader(path string) (snapshotHeader, bool) {
	var hdr snapshotHeader
	file, err := os.Open(path)
	if err != nil {
		return hdr, false
	}
	defer file.Close()

	if err := scanHeader(json.NewDecoder(file), &hdr); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Snapshot file is not parseable, using mtime")
		return hdr, false
	}
	return hdr, true
}

// scanHeader decodes the top-level header fields and stops at "data", which
// Write emits after them, so record payloads are never read.
func scanHeader(dec *json.Decoder, hdr *snapshotHeader) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("snapshot is not a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok {
		case "timestamp":
			err = dec.Decode(&hdr.Timestamp)
		case "kind":
			err = dec.Decode(&hdr.Kind)
		case "metadata":
			err = dec.Decode(&hdr.Metadata)
		case "data":
			return nil
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Read loads a snapshot. A missing file is not an error; an unparseable one is.
func (f *FileStore) Read(_ context.Context, id string) (models.Snapshot, bool, error) {
	path, stem, ok := f.resolve(id)
	if !ok {
		return models.Snapshot{}, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Snapshot{}, false, nil
		}
		return models.Snapshot{}, false, fmt.Errorf("snapshots: read %s: %w", stem, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, stem, err)
	}
	if snap.ID == "" {
		snap.ID = stem
	}
	return snap, true, nil
}

// Package filestore implements the two-tier file content store (hot tier
// in internal/kv, cold tier in internal/objectstore), directory marking,
// listing, rename, delete and size accounting.
package filestore

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/classroomlive/classroomd/internal/bytesize"
	"github.com/classroomlive/classroomd/internal/keys"
	"github.com/classroomlive/classroomd/internal/kv"
	"github.com/classroomlive/classroomd/internal/objectstore"
)

// emptyContentSentinel is stored in place of a zero-length file, because
// the underlying KV store rejects empty values.
const emptyContentSentinel = " "

// bulkRefPrefix marks a KV value as a reference to a cold-tier object
// rather than inline content. It is vanishingly unlikely to collide with
// real file content and is never itself valid UTF-8 source text start.
const bulkRefPrefix = "\x00classroomd-bulk-ref:"

// Config carries the placement and cap thresholds.
type Config struct {
	HotLimit         bytesize.ByteSize // files over this size are stored in the cold tier
	ProjectSizeLimit bytesize.ByteSize // per-project cap on the sum of file sizes
	RehydrateTTL     int64             // seconds; 0 means no expiry
}

// Store is the two-tier file content store.
type Store struct {
	kv     *kv.Store
	object *objectstore.Store
	cfg    Config
}

// New builds a Store.
func New(kvStore *kv.Store, objectStore *objectstore.Store, cfg Config) *Store {
	return &Store{kv: kvStore, object: objectStore, cfg: cfg}
}

// Entry is one listed file-list member with its decoded name.
type Entry struct {
	Encoded string
	Name    string
	Size    int64
}

// List returns every entry in owner's file-list, in the KV store's
// iteration order. If requireContent is true and any member's content key
// is absent, List returns ErrProjectFileMissing so the caller knows the
// listing is "cold" and must rehydrate before re-listing.
func (s *Store) List(ctx context.Context, owner Owner, requireContent bool) ([]Entry, error) {
	members, err := s.kv.ZScan(ctx, owner.fileListKey())
	if err != nil {
		return nil, fmt.Errorf("filestore: list: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		name, err := keys.DecodeFilename(m.Member)
		if err != nil {
			return nil, fmt.Errorf("filestore: decode filename %q: %w", m.Member, err)
		}
		if requireContent {
			length, err := s.kv.StrLen(ctx, owner.contentKey(m.Member))
			if err != nil {
				return nil, fmt.Errorf("filestore: check content presence: %w", err)
			}
			if length == 0 {
				return nil, ErrProjectFileMissing
			}
		}
		entries = append(entries, Entry{Encoded: m.Member, Name: name, Size: m.Score})
	}
	return entries, nil
}

// Create inserts a new file. Fails with ErrFileExists if already present.
// If markDirs, every ancestor directory of filename is eagerly marked
// present.
func (s *Store) Create(ctx context.Context, owner Owner, filename string, content []byte, markDirs bool) error {
	encoded := keys.EncodeFilename(filename)

	if _, err := s.kv.ZScore(ctx, owner.fileListKey(), encoded); err == nil {
		return ErrFileExists
	} else if err != kv.ErrNotFound {
		return fmt.Errorf("filestore: create: check existing: %w", err)
	}

	if err := s.kv.ZAdd(ctx, owner.fileListKey(), encoded, int64(len(content))); err != nil {
		return fmt.Errorf("filestore: create: zadd: %w", err)
	}
	if err := s.kv.Set(ctx, owner.contentKey(encoded), storedValue(content)); err != nil {
		return fmt.Errorf("filestore: create: set content: %w", err)
	}

	if markDirs {
		if err := s.markDirs(ctx, owner, filename); err != nil {
			return err
		}
	}
	return nil
}

// markDirs ensures "dir/<DirMark>" exists for every ancestor of filename,
// with an empty-content value like an explicitly created directory.
func (s *Store) markDirs(ctx context.Context, owner Owner, filename string) error {
	dir := path.Dir(filename)
	for dir != "." && dir != "/" && dir != "" {
		markName := dir + "/" + keys.DirMark
		encoded := keys.EncodeFilename(markName)
		if _, err := s.kv.ZScore(ctx, owner.fileListKey(), encoded); err == nil {
			dir = path.Dir(dir)
			continue // already marked; its own ancestors were marked when it was created
		} else if err != kv.ErrNotFound {
			return fmt.Errorf("filestore: mark dir: %w", err)
		}
		if err := s.kv.ZAdd(ctx, owner.fileListKey(), encoded, 0); err != nil {
			return fmt.Errorf("filestore: mark dir: zadd: %w", err)
		}
		if err := s.kv.Set(ctx, owner.contentKey(encoded), storedValue(nil)); err != nil {
			return fmt.Errorf("filestore: mark dir: set content: %w", err)
		}
		dir = path.Dir(dir)
	}
	return nil
}

// HasDirectory reports whether dir/<DirMark> is present in owner's file
// list.
func (s *Store) HasDirectory(ctx context.Context, owner Owner, dir string) (bool, error) {
	markName := dir + "/" + keys.DirMark
	_, err := s.kv.ZScore(ctx, owner.fileListKey(), keys.EncodeFilename(markName))
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("filestore: has directory: %w", err)
	}
	return true, nil
}

// Rename renames oldName to newName. Fails with ErrFileExists if newName
// already exists; the file-list mutation is not applied in that case, so
// a lost rename race leaves both entries intact.
func (s *Store) Rename(ctx context.Context, owner Owner, oldName, newName string) error {
	oldEncoded := keys.EncodeFilename(oldName)
	newEncoded := keys.EncodeFilename(newName)

	score, err := s.kv.ZScore(ctx, owner.fileListKey(), oldEncoded)
	if err == kv.ErrNotFound {
		return ErrFileNotFound
	}
	if err != nil {
		return fmt.Errorf("filestore: rename: score: %w", err)
	}

	if err := s.kv.RenameIfAbsent(ctx, owner.contentKey(oldEncoded), owner.contentKey(newEncoded)); err != nil {
		if err == kv.ErrExists {
			return ErrFileExists
		}
		return fmt.Errorf("filestore: rename: content: %w", err)
	}

	if err := s.kv.ZAdd(ctx, owner.fileListKey(), newEncoded, score); err != nil {
		return fmt.Errorf("filestore: rename: zadd new: %w", err)
	}
	if err := s.kv.ZRem(ctx, owner.fileListKey(), oldEncoded); err != nil {
		return fmt.Errorf("filestore: rename: zrem old: %w", err)
	}
	return nil
}

// RenameDirectory renames every file-list entry whose name starts with
// "oldDir/" to instead start with "newDir/", including the directory's own
// <DirMark> entry.
func (s *Store) RenameDirectory(ctx context.Context, owner Owner, oldDir, newDir string) error {
	oldPrefix := oldDir + "/"
	members, err := s.kv.ZScan(ctx, owner.fileListKey())
	if err != nil {
		return fmt.Errorf("filestore: rename directory: list: %w", err)
	}

	for _, m := range members {
		name, err := keys.DecodeFilename(m.Member)
		if err != nil {
			return fmt.Errorf("filestore: rename directory: decode: %w", err)
		}
		if !strings.HasPrefix(name, oldPrefix) {
			continue
		}
		newName := newDir + "/" + strings.TrimPrefix(name, oldPrefix)
		if err := s.Rename(ctx, owner, name, newName); err != nil {
			return fmt.Errorf("filestore: rename directory: rename %q: %w", name, err)
		}
	}
	return nil
}

// Delete removes filename. If the content was a bulk reference, the
// cold-tier object is deleted too, synchronously.
func (s *Store) Delete(ctx context.Context, owner Owner, filename string) error {
	encoded := keys.EncodeFilename(filename)

	if _, err := s.kv.ZScore(ctx, owner.fileListKey(), encoded); err == kv.ErrNotFound {
		return ErrFileNotFound
	} else if err != nil {
		return fmt.Errorf("filestore: delete: score: %w", err)
	}

	val, err := s.kv.Get(ctx, owner.contentKey(encoded))
	if err != nil && err != kv.ErrNotFound {
		return fmt.Errorf("filestore: delete: get content: %w", err)
	}
	if bulkKey, ok := parseBulkRef(val); ok {
		if err := s.object.Delete(ctx, bulkKey); err != nil {
			return fmt.Errorf("filestore: delete: bulk object: %w", err)
		}
	}

	if err := s.kv.Delete(ctx, owner.contentKey(encoded)); err != nil {
		return fmt.Errorf("filestore: delete: content key: %w", err)
	}
	if err := s.kv.ZRem(ctx, owner.fileListKey(), encoded); err != nil {
		return fmt.Errorf("filestore: delete: zrem: %w", err)
	}
	return nil
}

// DeletePrefix deletes every file-list entry nested under dir/ (directory
// delete), returning the decoded names removed.
func (s *Store) DeletePrefix(ctx context.Context, owner Owner, dir string) ([]string, error) {
	prefix := dir + "/"
	// EncodeFilename's base64(urlquote(...)) is not prefix-preserving, so
	// ZScanPrefix (which matches on the encoded member) can't be used
	// here; scan every entry and decode.
	all, err := s.kv.ZScan(ctx, owner.fileListKey())
	if err != nil {
		return nil, fmt.Errorf("filestore: delete prefix: list: %w", err)
	}

	var removed []string
	for _, m := range all {
		name, err := keys.DecodeFilename(m.Member)
		if err != nil {
			return nil, fmt.Errorf("filestore: delete prefix: decode: %w", err)
		}
		if name != dir && !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := s.Delete(ctx, owner, name); err != nil {
			return nil, fmt.Errorf("filestore: delete prefix: delete %q: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// Save upserts filename's content (participant projects only), enforcing
// the per-project size cap and placing content in the hot or cold tier by
// size.
func (s *Store) Save(ctx context.Context, owner Owner, filename string, content []byte) error {
	encoded := keys.EncodeFilename(filename)
	newSize := int64(len(content))

	prevSize, err := s.kv.ZScore(ctx, owner.fileListKey(), encoded)
	if err == kv.ErrNotFound {
		prevSize = 0
	} else if err != nil {
		return fmt.Errorf("filestore: save: prev score: %w", err)
	}

	currentTotal, err := s.kv.IncrBy(ctx, owner.sizeKey(), 0)
	if err != nil {
		return fmt.Errorf("filestore: save: read total: %w", err)
	}
	projected := currentTotal - prevSize + newSize
	if projected > int64(s.cfg.ProjectSizeLimit) {
		return ErrTotalSizeExceeded
	}

	if newSize > int64(s.cfg.HotLimit) {
		bulkKey := owner.bulkObjectKey(encoded)
		if err := s.object.Put(ctx, bulkKey, content); err != nil {
			return fmt.Errorf("filestore: save: bulk upload: %w", err)
		}
		if err := s.kv.Set(ctx, owner.contentKey(encoded), []byte(bulkRefPrefix+bulkKey)); err != nil {
			return fmt.Errorf("filestore: save: store bulk ref: %w", err)
		}
	} else if err := s.kv.Set(ctx, owner.contentKey(encoded), storedValue(content)); err != nil {
		return fmt.Errorf("filestore: save: store inline: %w", err)
	}

	if err := s.kv.ZAdd(ctx, owner.fileListKey(), encoded, newSize); err != nil {
		return fmt.Errorf("filestore: save: zadd: %w", err)
	}
	if _, err := s.kv.IncrBy(ctx, owner.sizeKey(), newSize-prevSize); err != nil {
		return fmt.Errorf("filestore: save: update total: %w", err)
	}
	return nil
}

// Import places filename's content as a brand-new entry (no exists check,
// unlike Create), marking ancestor directories and placing content in the
// hot or cold tier by size exactly like Save. Used by
// internal/template when copying a lesson's template into a fresh
// participant project.
func (s *Store) Import(ctx context.Context, owner Owner, filename string, content []byte) error {
	encoded := keys.EncodeFilename(filename)
	size := int64(len(content))

	if !owner.isTemplate() {
		current, err := s.kv.IncrBy(ctx, owner.sizeKey(), 0)
		if err != nil {
			return fmt.Errorf("filestore: import: read total: %w", err)
		}
		if current+size > int64(s.cfg.ProjectSizeLimit) {
			return ErrTotalSizeExceeded
		}
	}

	if size > int64(s.cfg.HotLimit) {
		bulkKey := owner.bulkObjectKey(encoded)
		if err := s.object.Put(ctx, bulkKey, content); err != nil {
			return fmt.Errorf("filestore: import: bulk upload: %w", err)
		}
		if err := s.setContent(ctx, owner, encoded, []byte(bulkRefPrefix+bulkKey)); err != nil {
			return err
		}
	} else if err := s.setContent(ctx, owner, encoded, storedValue(content)); err != nil {
		return err
	}

	if err := s.kv.ZAdd(ctx, owner.fileListKey(), encoded, size); err != nil {
		return fmt.Errorf("filestore: import: zadd: %w", err)
	}
	if err := s.markDirs(ctx, owner, filename); err != nil {
		return err
	}
	if !owner.isTemplate() {
		if _, err := s.kv.IncrBy(ctx, owner.sizeKey(), size); err != nil {
			return fmt.Errorf("filestore: import: update total: %w", err)
		}
	}
	return nil
}

// GetContent returns filename's content, rehydrating from the cold-tier
// project archive first if the file-list is entirely missing the entry.
func (s *Store) GetContent(ctx context.Context, owner Owner, filename string) ([]byte, error) {
	encoded := keys.EncodeFilename(filename)

	_, err := s.kv.ZScore(ctx, owner.fileListKey(), encoded)
	if err == kv.ErrNotFound {
		if err := s.Rehydrate(ctx, owner); err != nil {
			return nil, err
		}
		if _, err := s.kv.ZScore(ctx, owner.fileListKey(), encoded); err != nil {
			return nil, ErrFileNotFound
		}
	} else if err != nil {
		return nil, fmt.Errorf("filestore: get content: score: %w", err)
	}

	val, err := s.kv.Get(ctx, owner.contentKey(encoded))
	if err == kv.ErrNotFound {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: get content: %w", err)
	}

	if bulkKey, ok := parseBulkRef(val); ok {
		data, err := s.object.Get(ctx, bulkKey)
		if err != nil {
			if err == objectstore.ErrNotFound {
				return nil, ErrProjectFileMissing
			}
			return nil, fmt.Errorf("filestore: get content: bulk fetch: %w", err)
		}
		return data, nil
	}
	return unstoredValue(val), nil
}

// Rehydrate unzips owner's cold-tier archive into the hot tier, per-file
// bulk-hoisting entries over HotLimit, then rescans the result to
// (re)establish the total-size counter from scratch.
func (s *Store) Rehydrate(ctx context.Context, owner Owner) error {
	archiveKey := owner.archiveObjectKey()
	data, err := s.object.Get(ctx, archiveKey)
	if err != nil {
		if err == objectstore.ErrNotFound {
			return ErrProjectFileMissing
		}
		return fmt.Errorf("filestore: rehydrate: fetch archive: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("filestore: rehydrate: open archive: %w", err)
	}

	var total int64
	for _, f := range zr.File {
		name, err := sanitizeArchiveName(f.Name)
		if err != nil {
			return fmt.Errorf("filestore: rehydrate: %w", err)
		}
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("filestore: rehydrate: open entry %q: %w", name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("filestore: rehydrate: read entry %q: %w", name, err)
		}

		total += int64(len(content))
		if total > int64(s.cfg.ProjectSizeLimit) {
			return fmt.Errorf("filestore: rehydrate: archive exceeds project size limit")
		}

		encoded := keys.EncodeFilename(name)
		if int64(len(content)) > int64(s.cfg.HotLimit) {
			bulkKey := owner.bulkObjectKey(encoded)
			if err := s.object.Put(ctx, bulkKey, content); err != nil {
				return fmt.Errorf("filestore: rehydrate: hoist %q: %w", name, err)
			}
			if err := s.setContent(ctx, owner, encoded, []byte(bulkRefPrefix+bulkKey)); err != nil {
				return err
			}
		} else if err := s.setContent(ctx, owner, encoded, storedValue(content)); err != nil {
			return err
		}

		if err := s.kv.ZAdd(ctx, owner.fileListKey(), encoded, int64(len(content))); err != nil {
			return fmt.Errorf("filestore: rehydrate: zadd %q: %w", name, err)
		}
		if err := s.markDirs(ctx, owner, name); err != nil {
			return err
		}
	}

	if !owner.isTemplate() {
		current, err := s.kv.IncrBy(ctx, owner.sizeKey(), 0)
		if err != nil {
			return fmt.Errorf("filestore: rehydrate: read total: %w", err)
		}
		if _, err := s.kv.IncrBy(ctx, owner.sizeKey(), total-current); err != nil {
			return fmt.Errorf("filestore: rehydrate: set total: %w", err)
		}
	}
	return nil
}

func (s *Store) setContent(ctx context.Context, owner Owner, encoded string, value []byte) error {
	if s.cfg.RehydrateTTL > 0 {
		return s.kv.SetWithTTL(ctx, owner.contentKey(encoded), value, s.cfg.RehydrateTTL)
	}
	return s.kv.Set(ctx, owner.contentKey(encoded), value)
}

// LastCursor returns the viewer's last recorded cursor for (owner, file).
func (s *Store) LastCursor(ctx context.Context, scope keys.Scope, viewerParticipantID, ownerParticipantID int64, file string) ([]byte, error) {
	val, err := s.kv.HGet(ctx, scope.ParticipantCursorHash(viewerParticipantID), keys.CursorField(ownerParticipantID, file))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	return val, err
}

// SetLastCursor persists the viewer's cursor for (owner, file).
func (s *Store) SetLastCursor(ctx context.Context, scope keys.Scope, viewerParticipantID, ownerParticipantID int64, file string, cursor []byte) error {
	return s.kv.HSet(ctx, scope.ParticipantCursorHash(viewerParticipantID), keys.CursorField(ownerParticipantID, file), cursor)
}

func storedValue(content []byte) []byte {
	if len(content) == 0 {
		return []byte(emptyContentSentinel)
	}
	return content
}

func unstoredValue(stored []byte) []byte {
	if string(stored) == emptyContentSentinel {
		return []byte{}
	}
	return stored
}

func parseBulkRef(val []byte) (string, bool) {
	if !bytes.HasPrefix(val, []byte(bulkRefPrefix)) {
		return "", false
	}
	return string(val[len(bulkRefPrefix):]), true
}

// sanitizeArchiveName rejects absolute paths and parent-directory
// traversal in archive entries; archives come from object storage but
// their entry names are ultimately client-supplied.
func sanitizeArchiveName(name string) (string, error) {
	cleaned := path.Clean(name)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("unsafe archive entry path %q", name)
	}
	return cleaned, nil
}

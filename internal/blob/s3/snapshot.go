package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/state"
)

const (
	snapshotContentType = "application/x-ndjson"
	snapshotVersion     = 1
	snapshotSuffix      = ".jsonl"
)

// StateSource is the committed world state being exported.
type StateSource interface {
	Height() (uint64, error)
	Export(fn func(key, value []byte) error) error
}

// StateSink receives a restored world state.
type StateSink interface {
	Import(ctx context.Context, writes []state.Write) error
}

// snapshotHeader is the first JSONL line of every snapshot.
type snapshotHeader struct {
	Version   int       `json:"version"`
	Height    uint64    `json:"height"`
	Entries   int64     `json:"entries"`
	CreatedAt time.Time `json:"createdAt"`
}

type snapshotEntry struct {
	Key   hexutil.Bytes `json:"k"`
	Value hexutil.Bytes `json:"v"`
}

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Path    string `json:"path"`
	Height  uint64 `json:"height"`
	Entries int64  `json:"entries"`
}

// Snapshotter exports the world state as JSONL to object storage and
// restores it. Records are key/value pairs in key order after a header line.
type Snapshotter struct {
	store  domain.BlobStore
	audit  domain.AuditStore
	prefix string
	keep   int
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotter creates a Snapshotter storing objects under prefix. After
// each export only the newest keep snapshots are retained; keep <= 0
// retains everything. audit may be nil.
func NewSnapshotter(store domain.BlobStore, audit domain.AuditStore, prefix string, keep int, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		store:  store,
		audit:  audit,
		keep:   keep,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.With(slog.String("component", "snapshot")),
		now:    time.Now,
	}
}

// Export writes a consistent cut of src and returns where it was stored.
func (s *Snapshotter) Export(ctx context.Context, src StateSource) (SnapshotInfo, error) {
	height, err := src.Height()
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot height: %w", err)
	}

	var (
		body    bytes.Buffer
		entries int64
	)
	enc := json.NewEncoder(&body)
	err = src.Export(func(k, v []byte) error {
		entries++
		return enc.Encode(snapshotEntry{Key: k, Value: v})
	})
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot export: %w", err)
	}

	now := s.now().UTC()
	header, err := json.Marshal(snapshotHeader{
		Version:   snapshotVersion,
		Height:    height,
		Entries:   entries,
		CreatedAt: now,
	})
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot header: %w", err)
	}
	payload := make([]byte, 0, len(header)+1+body.Len())
	payload = append(payload, header...)
	payload = append(payload, '\n')
	payload = append(payload, body.Bytes()...)

	path := snapshotPath(s.prefix, height, now)
	err = s.store.Put(ctx, path, bytes.NewReader(payload), domain.PutOptions{
		ContentType: snapshotContentType,
		Metadata: map[string]string{
			"height":  strconv.FormatUint(height, 10),
			"entries": strconv.FormatInt(entries, 10),
		},
	})
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot upload: %w", err)
	}

	info := SnapshotInfo{Path: path, Height: height, Entries: entries}
	s.logger.InfoContext(ctx, "state snapshot stored",
		slog.String("path", path),
		slog.Uint64("height", height),
		slog.Int64("entries", entries),
	)
	if s.audit != nil {
		if err := s.audit.Log(ctx, "snapshot.export", map[string]any{
			"path":    path,
			"height":  height,
			"entries": entries,
		}); err != nil {
			return info, fmt.Errorf("s3blob: snapshot audit log: %w", err)
		}
	}
	if s.keep > 0 {
		if _, err := s.Prune(ctx); err != nil {
			s.logger.WarnContext(ctx, "snapshot prune failed", slog.String("error", err.Error()))
		}
	}
	return info, nil
}

// Latest returns the path of the most recent snapshot under the prefix.
// It returns domain.ErrNotFound when none exist.
func (s *Snapshotter) Latest(ctx context.Context) (string, error) {
	paths, err := s.snapshots(ctx)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("s3blob: no snapshot under %s: %w", s.prefix, domain.ErrNotFound)
	}
	return paths[len(paths)-1], nil
}

// Prune deletes all but the newest keep snapshots and reports how many
// were removed.
func (s *Snapshotter) Prune(ctx context.Context) (int, error) {
	if s.keep <= 0 {
		return 0, nil
	}
	paths, err := s.snapshots(ctx)
	if err != nil {
		return 0, err
	}
	if len(paths) <= s.keep {
		return 0, nil
	}
	stale := paths[:len(paths)-s.keep]
	for i, p := range stale {
		if err := s.store.Delete(ctx, p); err != nil {
			return i, fmt.Errorf("s3blob: prune: %w", err)
		}
	}
	s.logger.InfoContext(ctx, "old snapshots pruned", slog.Int("removed", len(stale)))
	return len(stale), nil
}

// snapshots lists snapshot paths oldest first.
func (s *Snapshotter) snapshots(ctx context.Context) ([]string, error) {
	infos, err := s.store.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, in := range infos {
		if strings.HasSuffix(in.Path, snapshotSuffix) {
			paths = append(paths, in.Path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Restore loads the snapshot at path into dst.
func (s *Snapshotter) Restore(ctx context.Context, path string, dst StateSink) (SnapshotInfo, error) {
	rc, err := s.store.Get(ctx, path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot %s: missing header: %w", path, domain.ErrInvalidArgument)
	}
	var hdr snapshotHeader
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot %s header: %w", path, err)
	}
	if hdr.Version != snapshotVersion {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot %s: unsupported version %d", path, hdr.Version)
	}

	writes := make([]state.Write, 0, hdr.Entries)
	for sc.Scan() {
		var e snapshotEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot %s line %d: %w", path, len(writes)+2, err)
		}
		writes = append(writes, state.Write{Key: e.Key, Value: e.Value})
	}
	if err := sc.Err(); err != nil {
		return SnapshotInfo{}, fmt.Errorf("s3blob: read snapshot %s: %w", path, err)
	}
	if int64(len(writes)) != hdr.Entries {
		return SnapshotInfo{}, fmt.Errorf("s3blob: snapshot %s: %d entries, header says %d: %w",
			path, len(writes), hdr.Entries, domain.ErrInvalidArgument)
	}

	if err := dst.Import(ctx, writes); err != nil {
		return SnapshotInfo{}, fmt.Errorf("s3blob: import snapshot %s: %w", path, err)
	}
	s.logger.InfoContext(ctx, "state snapshot restored",
		slog.String("path", path),
		slog.Uint64("height", hdr.Height),
	)
	return SnapshotInfo{Path: path, Height: hdr.Height, Entries: hdr.Entries}, nil
}

// snapshotPath builds a key that sorts by height, then time.
//
//	snapshots/00000000000000000042-20250101T000000Z.jsonl
func snapshotPath(prefix string, height uint64, at time.Time) string {
	return fmt.Sprintf("%s/%020d-%s%s", prefix, height, at.Format("20060102T150405Z"), snapshotSuffix)
}

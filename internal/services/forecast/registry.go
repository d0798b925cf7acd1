package forecast

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"RankPulse/internal/domain/models"
	"RankPulse/pkg/logger"
)

// Artifact sources, in lookup precedence order.
const (
	SourceTrained = "trained"
	SourceLegacy  = "legacy"
	SourceUpload  = "upload"
)

const descriptorSuffix = ".desc.json"

// DefaultMaxUploadBytes bounds uploads when no ceiling is configured.
const DefaultMaxUploadBytes int64 = 50 << 20

// allowedExtensions is the per-algorithm upload allow-list. Legacy
// lstm blobs can be stored and listed but never loaded.
var allowedExtensions = map[string][]string{
	AlgoGRU:  {".json"},
	AlgoLSTM: {".pt", ".pth"},
}

// ModelName is the identity recovered from an artifact filename:
// [global_]<country>_<device>_<chart>_<algo>[_<timestamp>].<ext>
type ModelName struct {
	Global    bool
	Country   string
	Device    string
	Chart     models.ChartType
	Algo      string
	Timestamp string
	Ext       string
}

// ParseModelName validates a filename against the naming grammar.
// The identity is load-bearing, so any deviation is a hard error.
func ParseModelName(filename string) (ModelName, error) {
	ext := filepath.Ext(filename)
	if ext == "" || ext == filename {
		return ModelName{}, fmt.Errorf("%q: missing extension: %w", filename, models.ErrInvalidModelName)
	}
	base := strings.TrimSuffix(filename, ext)
	parts := strings.Split(base, "_")

	var n ModelName
	n.Ext = ext
	if len(parts) > 0 && parts[0] == "global" {
		n.Global = true
		parts = parts[1:]
	}
	if len(parts) < 4 || len(parts) > 5 {
		return ModelName{}, fmt.Errorf("%q: want country_device_chart_algo[_ts]: %w", filename, models.ErrInvalidModelName)
	}
	n.Country, n.Device = parts[0], parts[1]
	if n.Country == "" {
		return ModelName{}, fmt.Errorf("%q: empty country: %w", filename, models.ErrInvalidModelName)
	}
	if !models.IsSupportedDevice(n.Device) {
		return ModelName{}, fmt.Errorf("%q: device %q not supported: %w", filename, n.Device, models.ErrInvalidModelName)
	}
	chart, err := models.ParseChartType(parts[2])
	if err != nil {
		return ModelName{}, fmt.Errorf("%q: %v: %w", filename, err, models.ErrInvalidModelName)
	}
	n.Chart = chart
	n.Algo = parts[3]
	if _, ok := allowedExtensions[n.Algo]; !ok {
		return ModelName{}, fmt.Errorf("%q: unknown algorithm %q: %w", filename, n.Algo, models.ErrInvalidModelName)
	}
	if len(parts) == 5 {
		n.Timestamp = parts[4]
		for _, c := range n.Timestamp {
			if c < '0' || c > '9' {
				return ModelName{}, fmt.Errorf("%q: non-numeric timestamp: %w", filename, models.ErrInvalidModelName)
			}
		}
	}
	return n, nil
}

// String renders the canonical filename.
func (n ModelName) String() string {
	var b strings.Builder
	if n.Global {
		b.WriteString("global_")
	}
	b.WriteString(n.Country)
	b.WriteByte('_')
	b.WriteString(n.Device)
	b.WriteByte('_')
	b.WriteString(string(n.Chart))
	b.WriteByte('_')
	b.WriteString(n.Algo)
	if n.Timestamp != "" {
		b.WriteByte('_')
		b.WriteString(n.Timestamp)
	}
	b.WriteString(n.Ext)
	return b.String()
}

// Key is the training-lock identity: everything except the timestamp
// and extension.
func (n ModelName) Key() string {
	stripped := n
	stripped.Timestamp = ""
	stripped.Ext = ""
	return stripped.String()
}

// Descriptor is the sidecar metadata record written next to every
// weights blob. It is the primary identity; filename parsing survives
// only to ingest legacy artifacts that lack a sidecar.
type Descriptor struct {
	Filename  string `json:"filename"`
	Global    bool   `json:"global,omitempty"`
	Country   string `json:"country"`
	Device    string `json:"device"`
	Chart     string `json:"chart"`
	Algo      string `json:"algo"`
	Lookback  int    `json:"lookback,omitempty"`
	Horizon   int    `json:"horizon,omitempty"`
	InputDim  int    `json:"input_dim,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256,omitempty"`
	CreatedAt string `json:"created_at"`
}

func descriptorFor(n ModelName, filename string) Descriptor {
	return Descriptor{
		Filename:  filename,
		Global:    n.Global,
		Country:   n.Country,
		Device:    n.Device,
		Chart:     string(n.Chart),
		Algo:      n.Algo,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// ModelEntry is one listed artifact with whichever identity records
// were recoverable.
type ModelEntry struct {
	Filename   string      `json:"filename"`
	Source     string      `json:"source"`
	SizeBytes  int64       `json:"size_bytes"`
	Name       *ModelName  `json:"-"`
	Descriptor *Descriptor `json:"descriptor,omitempty"`
}

// ModelListing is the merged view over all storage locations.
type ModelListing struct {
	Entries []ModelEntry   `json:"entries"`
	Counts  map[string]int `json:"counts"`
}

// RegistryConfig locates the three storage directories and bounds
// uploads.
type RegistryConfig struct {
	TrainedDir     string
	LegacyDir      string
	UploadDir      string
	MaxUploadBytes int64
}

// Registry is the filesystem-backed artifact store. Its files are the
// source of truth; nothing is cached between calls.
type Registry struct {
	cfg RegistryConfig
	log *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry(cfg RegistryConfig, log *logger.Logger) *Registry {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Registry{cfg: cfg, log: log, locks: make(map[string]*sync.Mutex)}
}

// trainedDir is per-algorithm so different model families never
// collide on filename.
func (r *Registry) trainedDir(algo string) string {
	return filepath.Join(r.cfg.TrainedDir, algo)
}

// searchDirs returns the lookup locations for one algorithm in
// precedence order.
func (r *Registry) searchDirs(algo string) [][2]string {
	return [][2]string{
		{SourceTrained, r.trainedDir(algo)},
		{SourceLegacy, r.cfg.LegacyDir},
		{SourceUpload, r.cfg.UploadDir},
	}
}

// LockTraining takes the advisory per-key training lock and returns
// the release func. Two trainings for the same dimensions serialize.
func (r *Registry) LockTraining(key string) func() {
	r.mu.Lock()
	lk, ok := r.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		r.locks[key] = lk
	}
	r.mu.Unlock()
	lk.Lock()
	return lk.Unlock
}

// List merges the trained, legacy and upload directories, de-duplicated
// by filename with trained taking precedence, keeping per-source
// counts of everything seen before de-duplication.
func (r *Registry) List() (ModelListing, error) {
	listing := ModelListing{
		Entries: []ModelEntry{},
		Counts:  map[string]int{SourceTrained: 0, SourceLegacy: 0, SourceUpload: 0},
	}
	seen := map[string]bool{}

	scan := func(source, dir string) error {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list %s dir: %w", source, err)
		}
		for _, de := range entries {
			if de.IsDir() || strings.HasSuffix(de.Name(), descriptorSuffix) {
				continue
			}
			listing.Counts[source]++
			if seen[de.Name()] {
				continue
			}
			seen[de.Name()] = true

			entry := ModelEntry{Filename: de.Name(), Source: source}
			if info, err := de.Info(); err == nil {
				entry.SizeBytes = info.Size()
			}
			if desc, err := r.readDescriptor(filepath.Join(dir, de.Name())); err == nil {
				entry.Descriptor = desc
			} else if n, err := ParseModelName(de.Name()); err == nil {
				entry.Name = &n
			}
			listing.Entries = append(listing.Entries, entry)
		}
		return nil
	}

	dirs := [][2]string{
		{SourceTrained, r.trainedDir(AlgoGRU)},
		{SourceLegacy, r.cfg.LegacyDir},
		{SourceUpload, r.cfg.UploadDir},
	}
	for _, d := range dirs {
		if err := scan(d[0], d[1]); err != nil {
			return ModelListing{}, err
		}
	}
	sort.Slice(listing.Entries, func(i, j int) bool {
		return listing.Entries[i].Filename < listing.Entries[j].Filename
	})
	return listing, nil
}

// Resolve finds the on-disk path of a named artifact, honoring the
// source precedence order.
func (r *Registry) Resolve(filename string) (string, string, error) {
	n, err := ParseModelName(filename)
	if err != nil {
		return "", "", err
	}
	for _, d := range r.searchDirs(n.Algo) {
		path := filepath.Join(d[1], filename)
		if _, err := os.Stat(path); err == nil {
			return path, d[0], nil
		}
	}
	return "", "", fmt.Errorf("model %q: %w", filename, models.ErrModelNotFound)
}

// Load reads a trained model's weights. Legacy lstm blobs are opaque
// and cannot be deserialized here.
func (r *Registry) Load(filename string) (*Model, error) {
	n, err := ParseModelName(filename)
	if err != nil {
		return nil, err
	}
	if n.Algo != AlgoGRU {
		return nil, fmt.Errorf("model %q: algorithm %q has no loader: %w", filename, n.Algo, models.ErrModelNotFound)
	}
	path, _, err := r.Resolve(filename)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %q: %w", filename, err)
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode model %q: %w", filename, err)
	}
	return &m, nil
}

// SaveTrained publishes freshly trained weights under the canonical
// name: write to a temp file, fsync-free rename into place, then write
// the sidecar descriptor. A concurrent reader only ever sees the old
// or the new artifact, never a partial one.
func (r *Registry) SaveTrained(n ModelName, m *Model) (string, error) {
	n.Algo = AlgoGRU
	n.Ext = ".json"
	dir := r.trainedDir(n.Algo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create trained dir: %w", err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode model: %w", err)
	}

	filename := n.String()
	final := filepath.Join(dir, filename)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	desc := descriptorFor(n, filename)
	desc.Lookback = m.Meta.Lookback
	desc.Horizon = m.Meta.Horizon
	desc.InputDim = m.Meta.InputDim
	desc.SizeBytes = int64(len(raw))
	sum := sha256.Sum256(raw)
	desc.SHA256 = hex.EncodeToString(sum[:])
	if err := r.writeDescriptor(final, desc); err != nil {
		return "", err
	}

	if r.log != nil {
		r.log.Info("model artifact published",
			logger.String("filename", filename),
			logger.Int64("size_bytes", desc.SizeBytes),
			logger.String("sha256", desc.SHA256),
		)
	}
	return filename, nil
}

// Upload ingests an externally produced artifact. The body is streamed
// against the byte ceiling; an oversized upload leaves nothing behind.
// Publication links the temp file into place, which fails on an
// existing name instead of replacing it; the loser of a name collision
// retries under a timestamp suffix.
func (r *Registry) Upload(filename string, body io.Reader) (*Descriptor, error) {
	n, err := ParseModelName(filename)
	if err != nil {
		return nil, err
	}
	if !extAllowed(n.Algo, n.Ext) {
		return nil, fmt.Errorf("extension %q not allowed for %s: %w", n.Ext, n.Algo, models.ErrUnsupportedExtension)
	}
	if err := os.MkdirAll(r.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(r.cfg.UploadDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp upload: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	hasher := sha256.New()
	limit := r.cfg.MaxUploadBytes
	// Read one byte past the ceiling to distinguish at-limit from over.
	written, err := io.Copy(io.MultiWriter(tmp, hasher), io.LimitReader(body, limit+1))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("stream upload: %w", err)
	}
	if written > limit {
		cleanup()
		return nil, fmt.Errorf("upload exceeds %d bytes: %w", limit, models.ErrUploadTooLarge)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close temp upload: %w", err)
	}

	stored := filename
	final := filepath.Join(r.cfg.UploadDir, stored)
	for {
		err := os.Link(tmp.Name(), final)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("publish upload: %w", err)
		}
		n.Timestamp = fmt.Sprintf("%d", time.Now().UnixNano())
		stored = n.String()
		final = filepath.Join(r.cfg.UploadDir, stored)
	}
	os.Remove(tmp.Name())

	desc := descriptorFor(n, stored)
	desc.SizeBytes = written
	desc.SHA256 = hex.EncodeToString(hasher.Sum(nil))
	if err := r.writeDescriptor(final, desc); err != nil {
		return nil, err
	}

	if r.log != nil {
		r.log.Info("model upload accepted",
			logger.String("filename", stored),
			logger.String("algo", n.Algo),
			logger.Int64("size_bytes", written),
			logger.String("sha256", desc.SHA256),
		)
	}
	return &desc, nil
}

func extAllowed(algo, ext string) bool {
	for _, e := range allowedExtensions[algo] {
		if e == ext {
			return true
		}
	}
	return false
}

func descriptorPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + descriptorSuffix
}

func (r *Registry) writeDescriptor(artifactPath string, desc Descriptor) error {
	raw, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := os.WriteFile(descriptorPath(artifactPath), raw, 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

func (r *Registry) readDescriptor(artifactPath string) (*Descriptor, error) {
	raw, err := os.ReadFile(descriptorPath(artifactPath))
	if err != nil {
		return nil, err
	}
	var desc Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

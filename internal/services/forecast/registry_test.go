package forecast

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"RankPulse/internal/domain/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	return NewRegistry(RegistryConfig{
		TrainedDir:     filepath.Join(root, "trained"),
		LegacyDir:      filepath.Join(root, "legacy"),
		UploadDir:      filepath.Join(root, "uploads"),
		MaxUploadBytes: 1 << 20,
	}, nil)
}

func TestParseModelName(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"cn_iphone_free_gru.json", false},
		{"global_us_android_grossing_gru_1735689600.json", false},
		{"cn_iphone_paid_lstm.pt", false},
		{"cn_iphone_free.json", true},              // missing algo
		{"cn_iphone_free_gru", true},               // missing extension
		{"cn_toaster_free_gru.json", true},         // unsupported device
		{"cn_iphone_top_gru.json", true},           // unknown chart
		{"cn_iphone_free_xgboost.json", true},      // unknown algorithm
		{"cn_iphone_free_gru_notdigits.json", true}, // bad timestamp
	}
	for _, c := range cases {
		_, err := ParseModelName(c.in)
		if c.wantErr {
			if !errors.Is(err, models.ErrInvalidModelName) {
				t.Fatalf("%q: err = %v, want ErrInvalidModelName", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.in, err)
		}
	}

	n, err := ParseModelName("global_us_android_grossing_gru_1735689600.json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !n.Global || n.Country != "us" || n.Device != "android" || n.Chart != models.ChartGrossing ||
		n.Algo != AlgoGRU || n.Timestamp != "1735689600" || n.Ext != ".json" {
		t.Fatalf("parsed = %+v", n)
	}
	if n.String() != "global_us_android_grossing_gru_1735689600.json" {
		t.Fatalf("String() = %q", n.String())
	}
	if n.Key() != "global_us_android_grossing_gru" {
		t.Fatalf("Key() = %q", n.Key())
	}
}

func TestSaveTrainedAndLoadRoundTrip(t *testing.T) {
	r := testRegistry(t)
	m := NewModel(ModelMeta{
		InputDim: InputDim, Hidden: 4, Layers: 1, Lookback: 5, Horizon: 2, MaxRank: 200,
	}, rand.New(rand.NewSource(1)))

	name := ModelName{Country: "cn", Device: "iphone", Chart: models.ChartFree}
	stored, err := r.SaveTrained(name, m)
	if err != nil {
		t.Fatalf("SaveTrained: %v", err)
	}
	if stored != "cn_iphone_free_gru.json" {
		t.Fatalf("stored name = %q", stored)
	}

	back, err := r.Load(stored)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	x := tinyInput(t, 5, InputDim)
	want, got := m.Predict(x), back.Predict(x)
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("loaded model predicts differently: %v vs %v", got, want)
		}
	}

	// Sidecar descriptor exists and is the primary identity.
	path, source, err := r.Resolve(stored)
	if err != nil || source != SourceTrained {
		t.Fatalf("Resolve: %v (%s)", err, source)
	}
	desc, err := r.readDescriptor(path)
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	if desc.Algo != AlgoGRU || desc.Lookback != 5 || desc.Horizon != 2 || desc.SHA256 == "" {
		t.Fatalf("descriptor = %+v", desc)
	}
}

func TestLoadMissingModel(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.Load("cn_iphone_free_gru.json"); !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestUploadHashCollisionAndCeiling(t *testing.T) {
	r := testRegistry(t)
	blob := []byte("opaque-legacy-weights")

	desc, err := r.Upload("cn_iphone_paid_lstm.pt", bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	sum := sha256.Sum256(blob)
	if desc.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("sha256 = %q", desc.SHA256)
	}
	if desc.Filename != "cn_iphone_paid_lstm.pt" {
		t.Fatalf("stored = %q", desc.Filename)
	}

	// Same name again: the original must survive untouched and the new
	// blob lands under a timestamp-suffixed name.
	desc2, err := r.Upload("cn_iphone_paid_lstm.pt", bytes.NewReader([]byte("other")))
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if desc2.Filename == desc.Filename {
		t.Fatalf("collision not resolved: %q", desc2.Filename)
	}
	if _, err := ParseModelName(desc2.Filename); err != nil {
		t.Fatalf("suffixed name %q no longer parses: %v", desc2.Filename, err)
	}
	orig, err := os.ReadFile(filepath.Join(r.cfg.UploadDir, desc.Filename))
	if err != nil || !bytes.Equal(orig, blob) {
		t.Fatalf("original upload was disturbed: %v", err)
	}

	// Oversized upload: rejected and nothing left behind.
	r.cfg.MaxUploadBytes = 4
	if _, err := r.Upload("us_ipad_free_lstm.pt", bytes.NewReader([]byte("way past limit"))); !errors.Is(err, models.ErrUploadTooLarge) {
		t.Fatalf("err = %v, want ErrUploadTooLarge", err)
	}
	entries, _ := os.ReadDir(r.cfg.UploadDir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "us_ipad") || strings.HasPrefix(e.Name(), ".upload-") {
			t.Fatalf("oversized upload left %q behind", e.Name())
		}
	}
}

func TestUploadCeilingDefaultsWhenUnset(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(RegistryConfig{
		TrainedDir: filepath.Join(root, "trained"),
		LegacyDir:  filepath.Join(root, "legacy"),
		UploadDir:  filepath.Join(root, "uploads"),
	}, nil)
	if r.cfg.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("ceiling = %d, want default %d", r.cfg.MaxUploadBytes, DefaultMaxUploadBytes)
	}

	desc, err := r.Upload("cn_iphone_paid_lstm.pt", bytes.NewReader([]byte("w")))
	if err != nil {
		t.Fatalf("upload under default ceiling: %v", err)
	}
	if desc.SizeBytes != 1 {
		t.Fatalf("size = %d, want 1", desc.SizeBytes)
	}
}

func TestUploadConcurrentSameNameKeepsEvery(t *testing.T) {
	r := testRegistry(t)
	const workers = 4

	var wg sync.WaitGroup
	descs := make([]*Descriptor, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := bytes.Repeat([]byte{byte('a' + i)}, 8)
			descs[i], errs[i] = r.Upload("us_iphone_free_lstm.pt", bytes.NewReader(body))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("upload %d: %v", i, errs[i])
		}
		if seen[descs[i].Filename] {
			t.Fatalf("name %q published twice", descs[i].Filename)
		}
		seen[descs[i].Filename] = true
		got, err := os.ReadFile(filepath.Join(r.cfg.UploadDir, descs[i].Filename))
		if err != nil {
			t.Fatalf("read %q: %v", descs[i].Filename, err)
		}
		if !bytes.Equal(got, bytes.Repeat([]byte{byte('a' + i)}, 8)) {
			t.Fatalf("artifact %q holds another upload's bytes", descs[i].Filename)
		}
	}
}

func TestUploadExtensionAllowList(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.Upload("cn_iphone_free_lstm.json", bytes.NewReader([]byte("x"))); !errors.Is(err, models.ErrUnsupportedExtension) {
		t.Fatalf("lstm .json: err = %v, want ErrUnsupportedExtension", err)
	}
	if _, err := r.Upload("cn_iphone_free_gru.pt", bytes.NewReader([]byte("x"))); !errors.Is(err, models.ErrUnsupportedExtension) {
		t.Fatalf("gru .pt: err = %v, want ErrUnsupportedExtension", err)
	}
}

func TestListMergesWithPerSourceCounts(t *testing.T) {
	r := testRegistry(t)

	m := NewModel(ModelMeta{InputDim: InputDim, Hidden: 2, Layers: 1, Lookback: 3, Horizon: 1, MaxRank: 200}, rand.New(rand.NewSource(2)))
	if _, err := r.SaveTrained(ModelName{Country: "cn", Device: "iphone", Chart: models.ChartFree}, m); err != nil {
		t.Fatalf("SaveTrained: %v", err)
	}
	// A legacy copy of the same filename plus a distinct legacy blob.
	if err := os.MkdirAll(r.cfg.LegacyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(r.cfg.LegacyDir, "cn_iphone_free_gru.json"), []byte("old"), 0o644)
	os.WriteFile(filepath.Join(r.cfg.LegacyDir, "us_iphone_paid_lstm.pt"), []byte("legacy"), 0o644)
	if _, err := r.Upload("jp_android_grossing_lstm.pt", bytes.NewReader([]byte("up"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	listing, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listing.Counts[SourceTrained] != 1 || listing.Counts[SourceLegacy] != 2 || listing.Counts[SourceUpload] != 1 {
		t.Fatalf("counts = %v", listing.Counts)
	}
	// 4 files seen, 3 distinct names; trained wins the duplicate.
	if len(listing.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(listing.Entries))
	}
	for _, e := range listing.Entries {
		if e.Filename == "cn_iphone_free_gru.json" && e.Source != SourceTrained {
			t.Fatalf("duplicate resolved to %q, want trained", e.Source)
		}
		if strings.HasSuffix(e.Filename, descriptorSuffix) {
			t.Fatalf("descriptor sidecar leaked into listing: %q", e.Filename)
		}
	}
}

func TestLockTrainingSerializesSameKey(t *testing.T) {
	r := testRegistry(t)
	key := ModelName{Country: "cn", Device: "iphone", Chart: models.ChartFree, Algo: AlgoGRU}.Key()

	release := r.LockTraining(key)
	acquired := make(chan struct{})
	go func() {
		unlock := r.LockTraining(key)
		close(acquired)
		unlock()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatalf("second holder acquired the lock while held")
	default:
	}
	release()
	<-acquired
}

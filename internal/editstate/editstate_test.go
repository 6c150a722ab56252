package editstate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"photonic/internal/catalog"
	"photonic/internal/curve"
	"photonic/internal/kernel"
	"photonic/internal/model"
	"photonic/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSourceBytes(t *testing.T) []byte {
	t.Helper()
	im := kernel.NewImage(16, 12)
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			im.Set(x, y, uint8(x*8), uint8(y*8), 128)
		}
	}
	blob, err := kernel.EncodeJPEG(im, 90)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	return blob
}

func newTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedAsset(t *testing.T, store *catalog.Store, assetID string) {
	t.Helper()
	folder := model.Folder{FolderID: "f1", Name: "Test", RootPath: "/tmp", HandleKey: "handle-f1"}
	if err := store.PutFolder(folder); err != nil {
		t.Fatalf("put folder: %v", err)
	}
	asset := model.Asset{
		AssetID: assetID, FolderID: "f1", Path: "img.jpg", Filename: "img.jpg",
		Extension: "jpg", FileSize: 100, ModifiedAt: time.Unix(0, 0),
	}
	if err := store.BulkPut([]model.Asset{asset}); err != nil {
		t.Fatalf("bulk put asset: %v", err)
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, []byte) {
	t.Helper()
	store := newTestStore(t)
	seedAsset(t, store, "a1")
	source := testSourceBytes(t)
	loader := func(ctx context.Context, assetID string) (kernel.DecodeRequest, error) {
		return kernel.DecodeRequest{Bytes: source, Ext: kernel.ExtJPG}, nil
	}
	runner := pipeline.NewRunner(1 << 20)
	return New(store, runner, loader, testLogger(), 4, 8), source
}

func TestLoadForAssetReturnsDefaultWhenUnsaved(t *testing.T) {
	c, _ := newTestCoordinator(t)
	state, err := c.LoadForAsset(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.IsDefault() {
		t.Fatalf("expected a freshly loaded asset with no saved edit to be the default state")
	}
	gotID, gotState := c.Current()
	if gotID != "a1" {
		t.Fatalf("expected current asset id a1, got %q", gotID)
	}
	if !gotState.IsDefault() {
		t.Fatalf("expected Current() to mirror LoadForAsset's default state")
	}
}

func TestSetAdjustmentsMarksDirtyAndPersistsOnSave(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, err := c.LoadForAsset(context.Background(), "a1"); err != nil {
		t.Fatalf("load: %v", err)
	}

	c.SetAdjustments(kernel.Adjustments{ExposureStops: 0.5, Contrast: 10})

	_, state := c.Current()
	if state.Adjustments.ExposureStops != 0.5 {
		t.Fatalf("expected mutation to apply immediately to the live state, got %+v", state.Adjustments)
	}
	c.mu.Lock()
	dirty := c.cache["a1"] != nil && c.cache["a1"].dirty
	c.mu.Unlock()
	if !dirty {
		t.Fatalf("expected the mutation to mark a1 dirty")
	}

	assetID, err := c.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if assetID != "a1" {
		t.Fatalf("expected Save to return the current asset id, got %q", assetID)
	}
	persisted, err := c.store.GetEditState("a1")
	if err != nil {
		t.Fatalf("get persisted edit state: %v", err)
	}
	if persisted.Adjustments.ExposureStops != 0.5 {
		t.Fatalf("expected Save to persist ExposureStops 0.5, got %v", persisted.Adjustments.ExposureStops)
	}
}

func TestSaveWithNoCurrentAssetReturnsError(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, err := c.Save(); err == nil {
		t.Fatalf("expected an error saving with no asset loaded")
	}
}

func TestResetSectionLeavesOtherGroupsUntouched(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, err := c.LoadForAsset(context.Background(), "a1"); err != nil {
		t.Fatalf("load: %v", err)
	}

	c.SetAdjustments(kernel.Adjustments{ExposureStops: 1.0})
	c.SetToneCurve([]curve.Point{{X: 0, Y: 0}, {X: 0.5, Y: 0.6}, {X: 1, Y: 1}})

	c.ResetSection(model.GroupBasic)

	_, state := c.Current()
	if state.Adjustments.ExposureStops != 0 {
		t.Fatalf("expected ResetSection(GroupBasic) to zero the Adjustments, got %+v", state.Adjustments)
	}
	if len(state.ToneCurve) != 3 {
		t.Fatalf("expected ResetSection(GroupBasic) to leave the tone curve untouched, got %+v", state.ToneCurve)
	}
}

func TestCopyPasteTransfersOnlyRequestedGroups(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	seedAsset(t, c.store, "a2")

	if _, err := c.LoadForAsset(ctx, "a1"); err != nil {
		t.Fatalf("load a1: %v", err)
	}
	c.SetAdjustments(kernel.Adjustments{ExposureStops: 0.75})
	if _, err := c.Save(); err != nil {
		t.Fatalf("save a1: %v", err)
	}

	snap, err := c.Copy("a1", []model.EditGroup{model.GroupBasic})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if err := c.Paste(ctx, "a2", snap); err != nil {
		t.Fatalf("paste: %v", err)
	}

	_, state := c.Current()
	if state.Adjustments.ExposureStops != 0.75 {
		t.Fatalf("expected pasted Adjustments.Exposure 0.75, got %v", state.Adjustments.ExposureStops)
	}
	if state.Crop.Crop != nil {
		t.Fatalf("expected crop group to remain untouched by a basic-only paste")
	}
}

func TestClearResetsCoordinatorState(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, err := c.LoadForAsset(context.Background(), "a1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.SetAdjustments(kernel.Adjustments{ExposureStops: 0.3})

	c.Clear()

	gotID, gotState := c.Current()
	if gotID != "" {
		t.Fatalf("expected Clear() to reset the current asset id, got %q", gotID)
	}
	if !gotState.IsDefault() {
		t.Fatalf("expected Clear() to reset the live state to default")
	}
}

func TestMutateWithNoCurrentAssetIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.SetAdjustments(kernel.Adjustments{ExposureStops: 5})
	if id, _ := c.Current(); id != "" {
		t.Fatalf("expected Mutate to be a no-op with no asset loaded, got current id %q", id)
	}
}

func TestRenderOutcomeDeliveredAfterDebounce(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, err := c.LoadForAsset(context.Background(), "a1"); err != nil {
		t.Fatalf("load: %v", err)
	}

	ch, unsub := c.Subscribe()
	defer unsub()

	c.SetAdjustments(kernel.Adjustments{ExposureStops: 0.2})

	select {
	case out := <-ch:
		if out.AssetID != "a1" {
			t.Fatalf("expected outcome for a1, got %q", out.AssetID)
		}
		if out.Err != nil {
			t.Fatalf("unexpected render error: %v", out.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a draft render outcome within the debounce window")
	}
}

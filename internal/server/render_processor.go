package server

import (
	"context"
	"os"

	"photonic/internal/apperr"
	"photonic/internal/blobstore"
	"photonic/internal/catalog"
	"photonic/internal/kernel"
	"photonic/internal/model"
	"photonic/internal/permissions"
	"photonic/internal/pipeline"
	"photonic/internal/scheduler"
)

// RenderProcessor backs the scheduler with the decode/render/encode/store
// sequence a thumbnail or preview request actually needs: resolve the
// asset's source bytes through the permission-gated folder handle,
// render it through the pipeline at the requested quality, JPEG-encode
// it, and persist the blob so the next request for the same
// (assetId, operation) is served from cache (spec.md §4.6, §4.8).
type RenderProcessor struct {
	cat    *catalog.Store
	perms  *permissions.Store
	runner *pipeline.Runner
	blobs  *blobstore.Store

	draftEdge   int // thumbnail short-edge target
	previewEdge int // preview long-edge target
	jpegQuality int
}

// NewRenderProcessor returns a scheduler.Processor implementation.
func NewRenderProcessor(cat *catalog.Store, perms *permissions.Store, runner *pipeline.Runner, blobs *blobstore.Store, draftEdge, previewEdge, jpegQuality int) *RenderProcessor {
	return &RenderProcessor{cat: cat, perms: perms, runner: runner, blobs: blobs, draftEdge: draftEdge, previewEdge: previewEdge, jpegQuality: jpegQuality}
}

// Process implements scheduler.Processor.
func (p *RenderProcessor) Process(ctx context.Context, assetID string, op scheduler.Operation) ([]byte, error) {
	kind := blobstore.KindThumbnail
	if op == scheduler.OpPreview1x || op == scheduler.OpPreview2x {
		kind = blobstore.KindPreview
	}

	decodeReq, edit, err := p.resolve(assetID)
	if err != nil {
		return nil, err
	}

	quality := pipeline.QualityDraft
	if op != scheduler.OpThumbnail {
		quality = pipeline.QualityFull
	}

	req := pipeline.Request{
		AssetID:     assetID,
		Quality:     quality,
		DraftEdge:   p.draftEdge,
		PreviewEdge: p.previewEdge,
		Decode:      decodeReq,
		Rotation:    edit.Crop.Rotation.Angle + edit.Crop.Rotation.Straighten,
		Crop:        edit.Crop.Crop,
		Adjustments: edit.Adjustments,
		Curve:       edit.ToneCurve,
		Masks:       edit.Masks,
		Filter:      kernel.FilterLanczos3,
	}
	result, err := p.runner.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	blob, err := kernel.EncodeJPEG(result.Image, p.jpegQuality)
	if err != nil {
		return nil, err
	}
	if err := p.blobs.Put(assetID, kind, blob); err != nil {
		return nil, err
	}
	return blob, nil
}

func (p *RenderProcessor) resolve(assetID string) (kernel.DecodeRequest, model.EditState, error) {
	asset, err := p.cat.GetAsset(assetID)
	if err != nil {
		return kernel.DecodeRequest{}, model.EditState{}, err
	}
	folder, err := p.cat.GetFolder(asset.FolderID)
	if err != nil {
		return kernel.DecodeRequest{}, model.EditState{}, err
	}
	state, err := p.perms.Query(folder.HandleKey)
	if err != nil {
		return kernel.DecodeRequest{}, model.EditState{}, err
	}
	if state != permissions.StateGranted {
		return kernel.DecodeRequest{}, model.EditState{}, apperr.ErrPermissionDenied
	}

	full := folder.RootPath + string(os.PathSeparator) + asset.Path
	data, err := os.ReadFile(full)
	if err != nil {
		return kernel.DecodeRequest{}, model.EditState{}, err
	}
	ext, err := kernel.ParseExtension(asset.Extension)
	if err != nil {
		return kernel.DecodeRequest{}, model.EditState{}, err
	}

	edit, err := p.cat.GetEditState(assetID)
	if err != nil {
		return kernel.DecodeRequest{}, model.EditState{}, err
	}
	return kernel.DecodeRequest{Bytes: data, Ext: ext}, edit, nil
}

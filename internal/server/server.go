// Package server exposes the Command surface (spec.md §6) over HTTP:
// gorilla/mux REST endpoints for folder/asset/edit/export operations, an
// SSE stream of scheduler completions grounded on the teacher's
// handleJobStream, and a gorilla/websocket /ws/render-events channel that
// pushes SchedulerEvent messages to a browser client as they complete
// (SPEC_FULL.md's Domain Stack section).
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"photonic/internal/blobstore"
	"photonic/internal/catalog"
	"photonic/internal/editstate"
	"photonic/internal/exporter"
	"photonic/internal/model"
	"photonic/internal/permissions"
	"photonic/internal/pipeline"
	"photonic/internal/scheduler"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server wires every engine package to the Command surface's HTTP
// transport (spec.md §6).
type Server struct {
	addr   string
	cat    *catalog.Store
	perms  *permissions.Store
	blobs  *blobstore.Store
	sched  *scheduler.Scheduler
	coord  *editstate.Coordinator
	runner *pipeline.Runner
	exp    *exporter.Exporter
	log    *slog.Logger

	upgrader websocket.Upgrader
	server   *http.Server
}

// New constructs a Server. It does not start listening until Start.
func New(addr string, cat *catalog.Store, perms *permissions.Store, blobs *blobstore.Store, sched *scheduler.Scheduler, coord *editstate.Coordinator, runner *pipeline.Runner, exp *exporter.Exporter, log *slog.Logger) (*Server, error) {
	return &Server{
		addr:   addr,
		cat:    cat,
		perms:  perms,
		blobs:  blobs,
		sched:  sched,
		coord:  coord,
		runner: runner,
		exp:    exp,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Start begins serving until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	r := mux.NewRouter()
	s.setupRoutes(r)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("server shutting down")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	r.HandleFunc("/folders", s.handleListFolders).Methods("GET")
	r.HandleFunc("/folders/{folderId}/assets", s.handleListAssets).Methods("GET")
	r.HandleFunc("/folders/{folderId}/rescan", s.handleRescanFolder).Methods("POST")
	r.HandleFunc("/folders/{folderId}", s.handleClearFolder).Methods("DELETE")

	r.HandleFunc("/assets/{assetId}/flag", s.handleSetFlag).Methods("POST")
	r.HandleFunc("/assets/{assetId}/edit", s.handleGetEditState).Methods("GET")
	r.HandleFunc("/assets/{assetId}/edit", s.handleSaveEditState).Methods("PUT")
	r.HandleFunc("/assets/{assetId}/thumbnail", s.handleRenderAsset(scheduler.OpThumbnail)).Methods("GET")
	r.HandleFunc("/assets/{assetId}/preview", s.handleRenderAsset(scheduler.OpPreview1x)).Methods("GET")

	r.HandleFunc("/export", s.handleExport).Methods("POST")

	r.HandleFunc("/permissions", s.handleListPermissions).Methods("GET")
	r.HandleFunc("/permissions/{key}/query", s.handleQueryPermission).Methods("POST")
	r.HandleFunc("/permissions/{key}/request", s.handleRequestPermission).Methods("POST")
	r.HandleFunc("/permissions/{key}/deny", s.handleDenyPermission).Methods("POST")

	r.HandleFunc("/stream", s.handleEventStream).Methods("GET")
	r.HandleFunc("/ws/render-events", s.handleRenderEvents).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, code int) {
	http.Error(w, err.Error(), code)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	folders, err := s.cat.RecentFolders(limit)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, folders)
}

// handleRescanFolder looks up a previously opened folder and clears any
// queued render work for it (spec.md §6 "rescanFolder"); the CLI's
// rescan command performs the filesystem walk itself since it alone
// holds a scanner.Scanner — this endpoint only clears the scheduler's
// pending queue so the next CLI rescan's results aren't shadowed by
// stale queue entries.
func (s *Server) handleRescanFolder(w http.ResponseWriter, r *http.Request) {
	folderID := mux.Vars(r)["folderId"]
	folder, err := s.cat.GetFolder(folderID)
	if err != nil {
		writeError(w, err, http.StatusNotFound)
		return
	}
	s.sched.ClearAll()
	writeJSON(w, map[string]string{"folderId": folder.FolderID, "status": "rescan queued"})
}

func (s *Server) handleClearFolder(w http.ResponseWriter, r *http.Request) {
	folderID := mux.Vars(r)["folderId"]
	if err := s.cat.ClearFolder(folderID); err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	s.sched.ClearAll()
	s.coord.Clear()
	s.blobs.ClearMemory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	folderID := mux.Vars(r)["folderId"]
	q := r.URL.Query()

	opts := catalog.ListOptions{
		FolderID: folderID,
		Flag:     model.Flag(q.Get("flag")),
		Sort:     model.SortField(q.Get("sort")),
		Dir:      model.SortDir(q.Get("dir")),
		Limit:    queryInt(q, "limit", 200),
		Offset:   queryInt(q, "offset", 0),
	}
	assets, err := s.cat.ListAssets(opts)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	counts, err := s.cat.FlagCounts(folderID)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"assets": assets, "flagCounts": counts})
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["assetId"]
	var body struct {
		Flag model.Flag `json:"flag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if err := s.cat.SetFlag(assetID, body.Flag); err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetEditState(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["assetId"]
	edit, err := s.coord.LoadForAsset(r.Context(), assetID)
	if err != nil {
		writeError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(w, edit)
}

// handleSaveEditState persists the edit coordinator's in-memory current
// edit and enqueues a thumbnail/preview regen (spec.md §8 "cache
// invalidation on edit").
func (s *Server) handleSaveEditState(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["assetId"]
	if cur, _ := s.coord.Current(); cur != assetID {
		if _, err := s.coord.LoadForAsset(r.Context(), assetID); err != nil {
			writeError(w, err, http.StatusNotFound)
			return
		}
	}
	saved, err := s.coord.Save()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	s.sched.Enqueue(scheduler.Request{AssetID: saved, Operation: scheduler.OpThumbnail, Priority: scheduler.PriorityVisible})
	s.sched.Enqueue(scheduler.Request{AssetID: saved, Operation: scheduler.OpPreview1x, Priority: scheduler.PriorityNearVisible})
	w.WriteHeader(http.StatusNoContent)
}

// handleRenderAsset serves a cached thumbnail/preview blob when present,
// otherwise enqueues the render and blocks briefly for it to land before
// falling back to 202 Accepted; the client is expected to watch
// /ws/render-events for the eventual completion in that case.
func (s *Server) handleRenderAsset(op scheduler.Operation) http.HandlerFunc {
	kind := blobstore.KindThumbnail
	if op == scheduler.OpPreview1x || op == scheduler.OpPreview2x {
		kind = blobstore.KindPreview
	}
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := mux.Vars(r)["assetId"]
		if blob, ok, err := s.blobs.Get(assetID, kind); err == nil && ok {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(blob)
			return
		}
		done := make(chan scheduler.Result, 1)
		s.sched.Enqueue(scheduler.Request{
			AssetID:   assetID,
			Operation: op,
			Priority:  scheduler.PriorityVisible,
			Callback:  func(res scheduler.Result) { done <- res },
		})
		select {
		case res := <-done:
			if res.Err != nil {
				writeError(w, res.Err, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(res.Blob)
		case <-r.Context().Done():
			w.WriteHeader(http.StatusRequestTimeout)
		case <-time.After(30 * time.Second):
			w.WriteHeader(http.StatusAccepted)
		}
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssetIDs    []string                   `json:"assetIds"`
		Destination string                     `json:"destination"`
		Template    string                     `json:"template"`
		Quality     int                        `json:"quality"`
		LongEdgePx  int                        `json:"longEdgePx"`
		Edits       map[string]model.EditState `json:"edits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	assets := make([]model.Asset, 0, len(body.AssetIDs))
	for _, id := range body.AssetIDs {
		a, err := s.cat.GetAsset(id)
		if err != nil {
			writeError(w, err, http.StatusNotFound)
			return
		}
		assets = append(assets, *a)
	}

	runID := uuid.NewString()
	req := exporter.Request{
		Assets:      assets,
		Edits:       body.Edits,
		Destination: body.Destination,
		Template:    body.Template,
		Quality:     body.Quality,
		Resize:      exporter.Resize{LongEdgePx: body.LongEdgePx},
		Scope:       exporter.ScopeSelection,
	}
	var totalBytes int64
	for _, a := range assets {
		totalBytes += a.FileSize
	}
	s.log.Info("export starting", "run", runID, "assets", len(assets), "sourceBytes", humanize.Bytes(uint64(totalBytes)))

	summary, err := s.exp.Export(r.Context(), req, func(current, total int, filename string) {
		s.log.Info("export progress", "run", runID, "current", current, "total", total, "file", filename)
	})
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"runId":        runID,
		"successCount": summary.SuccessCount,
		"failures":     summary.Failures,
	})
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.perms.List()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleQueryPermission(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	state, err := s.perms.Query(key)
	if err != nil {
		writeError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"state": string(state)})
}

func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	state, err := s.perms.Request(key)
	if err != nil {
		writeError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"state": string(state)})
}

func (s *Server) handleDenyPermission(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := s.perms.Deny(key); err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEventStream is an SSE feed of scheduler completions, grounded on
// the teacher's handleJobStream (subscribe, write "data: ...\n\n",
// flush, exit on client disconnect or channel close).
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	events, unsubscribe := s.sched.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, _ := json.Marshal(ev)
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

// handleRenderEvents upgrades to a websocket connection that pushes every
// SchedulerEvent as it completes, and accepts a {"abort":{"assetId",
// "operation"}} text message from the client to cancel in-flight work
// (SPEC_FULL.md: "a bidirectional channel the UI can also use to send
// abort() requests").
func (s *Server) handleRenderEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.sched.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readAbortRequests(ctx, cancel, conn)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

type abortRequest struct {
	Abort struct {
		AssetID   string              `json:"assetId"`
		Operation scheduler.Operation `json:"operation"`
	} `json:"abort"`
}

func (s *Server) readAbortRequests(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		var req abortRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Abort.AssetID != "" {
			s.sched.Cancel(req.Abort.AssetID, req.Abort.Operation)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

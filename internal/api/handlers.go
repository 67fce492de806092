package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trackforge/trackforge/internal/codec"
	"github.com/trackforge/trackforge/internal/session"
	"github.com/trackforge/trackforge/internal/track"
	"github.com/trackforge/trackforge/internal/trackerr"
)

// statusFor maps err to an HTTP status, defaulting to 500 for anything
// that isn't a *trackerr.Error (spec §7 propagation policy).
func statusFor(err error) int {
	if te, ok := err.(*trackerr.Error); ok {
		return te.Kind.Status()
	}
	return http.StatusInternalServerError
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) *session.Session {
	id := chi.URLParam(r, "sessionID")
	sess := s.registry.Get(id)
	if sess == nil {
		s.errorJSON(w, trackerr.Newf(trackerr.NotFound, "no session %q", id), http.StatusNotFound)
		return nil
	}
	return sess
}

func readUploadedFile(w http.ResponseWriter, r *http.Request, maxBytes int64) (filename string, content []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, err
	}
	defer file.Close()
	content, err = io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, content, nil
}

// handleUpload implements spec §6's upload(filename, bytes).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	filename, content, err := readUploadedFile(w, r, s.config.MaxUploadBytes)
	if err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidFormat, "upload: %v", err), http.StatusBadRequest)
		return
	}

	t, err := codec.Decode(filename, content)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}

	id, _ := s.registry.Create(t)
	s.writeJSON(w, http.StatusCreated, envelope{"session_id": id, "track": t.Dict()})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	t, _ := sess.Undo()
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	t, _ := sess.Redo()
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	t := sess.Reset()
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func gpsStuckDict(g session.GpsStuck) map[string]any {
	return map[string]any{
		"segment_idx":   g.SegmentIdx,
		"start_idx":     g.StartIdx,
		"end_idx":       g.EndIdx,
		"stuck_indices": g.StuckIndices,
	}
}

func (s *Server) handleNormalizePreview(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	maxSpeed, _ := strconv.ParseFloat(r.URL.Query().Get("max_speed"), 64)
	minPoints, _ := strconv.Atoi(r.URL.Query().Get("min_points"))
	if maxSpeed <= 0 {
		maxSpeed = 0.5
	}
	if minPoints <= 0 {
		minPoints = 3
	}

	stucks := sess.DetectGpsStucks(maxSpeed, minPoints)
	out := make([]map[string]any, len(stucks))
	for i, g := range stucks {
		out[i] = gpsStuckDict(g)
	}
	s.writeJSON(w, http.StatusOK, envelope{"stucks": out})
}

type gpsStuckRequest struct {
	SegmentIdx   int   `json:"segment_idx"`
	StartIdx     int   `json:"start_idx"`
	EndIdx       int   `json:"end_idx"`
	StuckIndices []int `json:"stuck_indices"`
}

func (s *Server) handleNormalizeApply(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	var body struct {
		Stucks []gpsStuckRequest `json:"stucks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidArgument, "bad request body: %v", err), http.StatusBadRequest)
		return
	}

	stucks := make([]session.GpsStuck, len(body.Stucks))
	for i, g := range body.Stucks {
		stucks[i] = session.GpsStuck{
			SegmentIdx:   g.SegmentIdx,
			StartIdx:     g.StartIdx,
			EndIdx:       g.EndIdx,
			StuckIndices: g.StuckIndices,
		}
	}

	t, err := sess.NormalizeGpsStucks(stucks)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleAddPoint(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	var body struct {
		SegmentIdx   int     `json:"segment_idx"`
		PrevPointIdx int     `json:"prev_point_idx"`
		Lat          float64 `json:"lat"`
		Lon          float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidArgument, "bad request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := sess.InsertPoint(body.SegmentIdx, body.PrevPointIdx, body.Lat, body.Lon)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleUpdateTime(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	var body struct {
		SegmentIdx int    `json:"segment_idx"`
		PointIdx   int    `json:"point_idx"`
		NewTime    string `json:"new_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidArgument, "bad request body: %v", err), http.StatusBadRequest)
		return
	}
	newTime, err := time.Parse(time.RFC3339, body.NewTime)
	if err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidArgument, "bad new_time: %v", err), http.StatusBadRequest)
		return
	}

	t, err := sess.UpdateTime(body.SegmentIdx, body.PointIdx, newTime)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleReroute(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	var body struct {
		SegmentIdx int     `json:"segment_idx"`
		PointIdx   int     `json:"point_idx"`
		NewLat     float64 `json:"new_lat"`
		NewLon     float64 `json:"new_lon"`
		Mode       string  `json:"mode"`
		RadiusM    float64 `json:"radius_m"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidArgument, "bad request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := sess.Reroute(body.SegmentIdx, body.PointIdx, body.NewLat, body.NewLon, body.RadiusM, body.Mode)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	var body struct {
		StartIdx int `json:"start_idx"`
		EndIdx   int `json:"end_idx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidArgument, "bad request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := sess.Trim(body.StartIdx, body.EndIdx)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	filename, content, err := readUploadedFile(w, r, s.config.MaxUploadBytes)
	if err != nil {
		s.errorJSON(w, trackerr.Newf(trackerr.InvalidFormat, "merge: %v", err), http.StatusBadRequest)
		return
	}

	other, err := codec.Decode(filename, content)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}

	t, err := sess.MergeWith(other)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, t.Dict())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := s.lookupSession(w, r)
	if sess == nil {
		return
	}
	format := chi.URLParam(r, "format")

	current := sess.Current()
	t := &track.Track{Segments: current.Segments, Metadata: current.Metadata}

	data, mediaType, err := codec.Encode(t, format)
	if err != nil {
		s.errorJSON(w, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="track.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess := s.registry.Delete(id)
	if sess == nil {
		s.errorJSON(w, trackerr.Newf(trackerr.NotFound, "no session %q", id), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

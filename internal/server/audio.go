package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/raphaelgruber/voxchat/internal/storage"
)

// handleAudio streams a stored blob. Audio URLs are handed to players that
// cannot attach a token, so this route is public; keys are unguessable.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	key, err := storage.CleanKey(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obj, err := s.deps.Audio.Blobs().Open(r.Context(), key)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "audio not found")
		return
	}
	if err != nil {
		s.logger.Error("open audio failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.logger.Debug("audio copy interrupted", "key", key, "error", err)
	}
}

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/raphaelgruber/voxchat/internal/speech"
)

// handleProcessSpeech is the inference gateway function. Every failure is
// answered with 500 and {error, success:false}.
func (s *Server) handleProcessSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, speech.ErrorResponse{Error: "method not allowed"})
		return
	}

	req, err := readGatewayRequest(w, r)
	if err != nil {
		s.gatewayError(w, err)
		return
	}

	resp, err := s.deps.Gateway.Process(r.Context(), req)
	if err != nil {
		s.gatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readGatewayRequest decodes the multipart body. Absent fields are left
// empty for the gateway to report.
func readGatewayRequest(w http.ResponseWriter, r *http.Request) (speech.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return speech.Request{}, fmt.Errorf("%w: expected multipart/form-data", speech.ErrMissingParameter)
		}
		return speech.Request{}, fmt.Errorf("parse form: %w", err)
	}

	req := speech.Request{
		Model:    r.FormValue(speech.FieldModel),
		Language: r.FormValue(speech.FieldLanguage),
	}

	file, header, err := r.FormFile(speech.FieldAudio)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return req, fmt.Errorf("read audio: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return req, fmt.Errorf("read audio: %w", err)
	}
	req.Audio = data
	req.AudioType = header.Header.Get("Content-Type")
	return req, nil
}

func (s *Server) gatewayError(w http.ResponseWriter, err error) {
	s.logger.Warn("gateway request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, speech.ErrorResponse{Error: err.Error(), Success: false})
}

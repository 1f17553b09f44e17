package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/torosent/crankprom/internal/sample"
)

const (
	SamplesPath  = "/api/v1/samples"
	StreamPath   = "/api/v1/samples/stream"
	maxBodyBytes = 8 << 20
)

type acceptedResponse struct {
	Accepted int `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPHandler accepts POSTed samples or batches of samples.
type HTTPHandler struct {
	sink Sink
	log  *logrus.Entry
}

func NewHTTPHandler(sink Sink, log *logrus.Entry) *HTTPHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HTTPHandler{sink: sink, log: log.WithField("source", SourceHTTP)}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	samples, err := sample.DecodeBatch(data)
	if err != nil {
		h.log.WithError(err).Debug("rejected sample payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	for _, s := range samples {
		h.sink.OnSample(s)
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: len(samples)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

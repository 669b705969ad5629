package server

import (
	"errors"
	"net/http"

	"github.com/cyclopcam/framesearch/server/blobstore"
	"github.com/cyclopcam/framesearch/server/search"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// searchWebResult is a search.Result plus the resolved keyframe image.
// Image marshals as base64, or null when the keyframe couldn't be found.
type searchWebResult struct {
	search.Result
	Image []byte `json:"image"`
}

type searchWebResponse struct {
	Success             bool              `json:"success"`
	TotalMatches        int               `json:"totalMatches"`
	Results             []searchWebResult `json:"results"`
	SearchTerm          string            `json:"searchTerm"`
	ConfidenceThreshold float64           `json:"confidenceThreshold"`
	ScannedRecords      int               `json:"scannedRecords"`
	SkippedRecords      int               `json:"skippedRecords"`
}

func (s *Server) httpSearch(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type searchRequest struct {
		Query       string   `json:"query"`
		Confidence  *float64 `json:"confidence"`
		MaxResults  int      `json:"maxResults"`
		VideoFilter string   `json:"videoFilter"`
	}
	req := searchRequest{}
	www.ReadJSON(w, r, &req, 1024*1024)

	confidence := search.DefaultConfidenceFloor
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}

	resp, err := s.engine.Search(req.Query, confidence, maxResults, req.VideoFilter)
	if errors.Is(err, search.ErrInvalidQuery) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)

	webResults := make([]searchWebResult, 0, len(resp.Results))
	for _, res := range resp.Results {
		wr := searchWebResult{Result: res}
		if image, err := s.engine.ResolveImage(res.VideoID, res.FrameNumber); err == nil {
			wr.Image = image
		} else if !errors.Is(err, blobstore.ErrNotFound) {
			www.Check(err)
		}
		webResults = append(webResults, wr)
	}

	www.SendJSON(w, &searchWebResponse{
		Success:             true,
		TotalMatches:        resp.TotalMatches,
		Results:             webResults,
		SearchTerm:          req.Query,
		ConfidenceThreshold: confidence,
		ScannedRecords:      resp.ScannedRecords,
		SkippedRecords:      resp.SkippedRecords,
	})
}

func (s *Server) httpFrameDetails(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	detail, err := s.engine.FrameDetails(params.ByName("video"), params.ByName("frame"))
	www.Check(err)
	www.SendJSON(w, detail)
}

func (s *Server) httpFrameImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	blob, err := s.engine.ResolveImageBlob(params.ByName("video"), params.ByName("frame"))
	if errors.Is(err, blobstore.ErrNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
	image, err := s.Store.Payload(blob)
	www.Check(err)
	// Keyframes are write-once, so the image can be cached forever
	www.CacheImmutable(w)
	w.Header().Set("Content-Type", blob.ContentType)
	w.Write(image)
}

func (s *Server) httpStats(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	stats, err := s.engine.DatasetStats()
	www.Check(err)
	www.SendJSON(w, stats)
}

func (s *Server) httpSuggestions(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type suggestionsJSON struct {
		Suggestions []string `json:"suggestions"`
	}
	suggestions, err := s.engine.Suggestions()
	www.Check(err)
	www.SendJSON(w, &suggestionsJSON{Suggestions: suggestions})
}

func (s *Server) httpBatches(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	summaries, err := s.Store.BatchSummaries()
	www.Check(err)
	www.SendJSON(w, summaries)
}

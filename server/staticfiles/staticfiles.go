package staticfiles

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
)

// FileServer serves the search UI from a directory on disk. The UI is a
// single page app, so any path that is not a genuine file serves up
// index.html, and the SPA's router figures out which page to show from the
// URL. API paths never fall through to index.html; they 404 instead.
//
// Compressible files are gzipped once and cached in memory, so we don't pay
// the compression price on every request.
type FileServer struct {
	log           logs.Log
	root          string
	apiPrefixes   []string
	compressLevel int

	cacheLock sync.Mutex
	cache     map[string]*cachedFile // key is the cleaned URL path
}

type cachedFile struct {
	modTime    time.Time
	compressed []byte
}

var compressExtensions = map[string]bool{
	".css":  true,
	".js":   true,
	".html": true,
	".svg":  true,
	".map":  true,
	".json": true,
}

// root is the web content directory.
// apiPrefixes are routes such as "/api", which must never serve index.html.
func NewFileServer(log logs.Log, root string, apiPrefixes []string) (*FileServer, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("Web root %v is not a directory", root)
	}
	// Compression level 9 takes an order of magnitude longer than 5, for a
	// fraction of a percent in size.
	return &FileServer{
		log:           log,
		root:          root,
		apiPrefixes:   apiPrefixes,
		compressLevel: 5,
		cache:         map[string]*cachedFile{},
	}, nil
}

// This is the fallback handler, hit when none of the API routes match.
func (s *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean prevents FS traversals (eg /icons/../../../../etc/ssl.key)
	rel := path.Clean("/" + r.URL.Path)
	for _, api := range s.apiPrefixes {
		if strings.HasPrefix(rel, api) {
			http.Error(w, fmt.Sprintf("The url path '%v' is not a valid API", rel), 404)
			return
		}
	}

	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	st, err := os.Stat(abs)
	if err != nil || st.IsDir() {
		// Not a genuine file, so it must be index.html
		rel = "/index.html"
		abs = filepath.Join(s.root, "index.html")
		st, err = os.Stat(abs)
		if err != nil {
			w.WriteHeader(404)
			return
		}
	}
	s.serveFile(w, r, rel, abs, st.ModTime())
}

func (s *FileServer) serveFile(w http.ResponseWriter, r *http.Request, rel, abs string, modTime time.Time) {
	w.Header().Set("Cache-Control", "max-age=5, must-revalidate")

	canGzip := compressExtensions[strings.ToLower(path.Ext(rel))] &&
		strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
	if !canGzip {
		file, err := os.Open(abs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer file.Close()
		http.ServeContent(w, r, rel, modTime, file)
		return
	}

	s.cacheLock.Lock()
	cached := s.cache[rel]
	s.cacheLock.Unlock()
	if cached == nil || modTime.After(cached.modTime) {
		data, err := os.ReadFile(abs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		start := time.Now()
		buf := bytes.Buffer{}
		zw, err := gzip.NewWriterLevel(&buf, s.compressLevel)
		if err == nil {
			_, err = zw.Write(data)
		}
		if err == nil {
			err = zw.Close()
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		cached = &cachedFile{
			modTime:    modTime,
			compressed: buf.Bytes(),
		}
		s.cacheLock.Lock()
		s.cache[rel] = cached
		s.cacheLock.Unlock()
		s.log.Infof("Compressed %v in %v ms", rel, time.Since(start).Milliseconds())
	}

	w.Header().Set("Content-Type", mime.TypeByExtension(path.Ext(rel)))
	w.Header().Set("Content-Encoding", "gzip")
	http.ServeContent(w, r, "", modTime, bytes.NewReader(cached.compressed))
}

package remotetest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/gorilla/mux"
)

// ContentsServer is a fake of the hosting provider's file-contents API backed
// by a Memory store.
type ContentsServer struct {
	*httptest.Server
	Store *Memory
	Token string
}

type putBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// NewContentsServer starts a fake contents API that requires the given bearer
// token. The caller must Close it.
func NewContentsServer(store *Memory, token string) *ContentsServer {
	s := &ContentsServer{Store: store, Token: token}

	r := mux.NewRouter()
	contents := r.PathPrefix("/repos/{owner}/{repo}/contents").Subrouter()
	contents.Use(s.authenticate)
	contents.HandleFunc("/{path:.+}", s.handleGet).Methods(http.MethodGet)
	contents.HandleFunc("/{path:.+}", s.handlePut).Methods(http.MethodPut)

	s.Server = httptest.NewServer(r)
	return s
}

func (s *ContentsServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeMessage(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *ContentsServer) handleGet(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	file, err := s.Store.Fetch(r.Context(), path, r.Header.Get("If-None-Match"))
	switch {
	case errors.Is(err, remote.ErrNotModified):
		w.WriteHeader(http.StatusNotModified)
		return
	case errors.Is(err, remote.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	case err != nil:
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("ETag", file.ETag)
	writeJSON(w, http.StatusOK, map[string]any{
		"type":     "file",
		"encoding": "base64",
		"path":     file.Path,
		"name":     path[strings.LastIndex(path, "/")+1:],
		"sha":      file.Revision,
		"content":  remote.EncodeContentWrapped(file.Content),
	})
}

func (s *ContentsServer) handlePut(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	var body putBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	content, err := remote.DecodeContent(body.Content)
	if err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	var file *remote.File
	status := http.StatusOK
	if body.SHA == "" {
		file, err = s.Store.Create(r.Context(), path, content)
		status = http.StatusCreated
	} else {
		file, err = s.Store.Put(r.Context(), path, content, body.SHA)
	}

	switch {
	case errors.Is(err, remote.ErrAlreadyExists):
		writeMessage(w, http.StatusUnprocessableEntity, `Invalid request. "sha" wasn't supplied.`)
		return
	case remote.IsConflict(err):
		writeMessage(w, http.StatusConflict, path+" does not match "+body.SHA)
		return
	case errors.Is(err, remote.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	case err != nil:
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, status, map[string]any{
		"content": map[string]any{"path": file.Path, "sha": file.Revision},
		"commit":  map[string]any{"sha": "commit-" + file.Revision, "message": body.Message},
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

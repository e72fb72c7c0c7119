// internal/server/handlers.go
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mwiater/examrag/internal/ingest"
	"github.com/mwiater/examrag/internal/session"
	"github.com/mwiater/examrag/internal/util"
)

type messageReq struct {
	Query string `json:"query"`
}

type feedbackReq struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

type doneEvent struct {
	Stage      string   `json:"stage"`
	Standalone string   `json:"standalone,omitempty"`
	Language   string   `json:"language,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{"error": msg})
}

func (s *Server) health(c echo.Context) error {
	st := s.ingester.Stats(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"available": st.Available,
		"documents": st.TotalDocuments,
		"chunks":    st.TotalChunks,
	})
}

func (s *Server) lookup(c echo.Context) (*session.Session, error) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		return nil, errorJSON(c, http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (s *Server) createSession(c echo.Context) error {
	sess := s.sessions.Create()
	return c.JSON(http.StatusCreated, map[string]any{"id": sess.ID, "chat_id": sess.ChatID()})
}

func (s *Server) deleteSession(c echo.Context) error {
	if !s.sessions.Delete(c.Param("id")) {
		return errorJSON(c, http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) resetSession(c echo.Context) error {
	sess, err := s.lookup(c)
	if sess == nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"id": sess.ID, "chat_id": sess.Reset()})
}

func (s *Server) transcript(c echo.Context) error {
	sess, err := s.lookup(c)
	if sess == nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"chat_id": sess.ChatID(), "messages": sess.Transcript()})
}

func (s *Server) feedback(c echo.Context) error {
	sess, err := s.lookup(c)
	if sess == nil {
		return err
	}
	var req feedbackReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid json: "+err.Error())
	}
	if !sess.Feedback(req.Index, req.Value) {
		return errorJSON(c, http.StatusBadRequest, "feedback not recorded")
	}
	return c.NoContent(http.StatusNoContent)
}

// postMessage streams the answer as server-sent events: one data event per
// fragment (a JSON string) and a final "done" event.
func (s *Server) postMessage(c echo.Context) error {
	sess, err := s.lookup(c)
	if sess == nil {
		return err
	}
	var req messageReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid json: "+err.Error())
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return errorJSON(c, http.StatusBadRequest, "query is required")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	run := sess.Ask(c.Request().Context(), query)
	for fragment := range run.Fragments() {
		data, _ := json.Marshal(fragment)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			break
		}
		w.Flush()
	}

	standalone, language := run.Standalone()
	done := doneEvent{Stage: run.Stage().String(), Standalone: standalone, Language: language}
	for _, src := range run.Sources() {
		done.Sources = append(done.Sources, src.Chunk.ID)
	}
	data, _ := json.Marshal(done)
	_, _ = fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	w.Flush()
	return nil
}

func (s *Server) listDocuments(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"documents": s.ingester.ListDocuments(c.Request().Context())})
}

func (s *Server) documentStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ingester.Stats(c.Request().Context()))
}

func (s *Server) uploadDocuments(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "expected multipart form: "+err.Error())
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return errorJSON(c, http.StatusBadRequest, "no files uploaded")
	}

	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("open %s: %v", fh.Filename, err))
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		f.Close()
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
		}
		name := util.BaseName(fh.Filename)
		if name == "" {
			name = fh.Filename
		}
		files = append(files, ingest.File{Name: name, Data: data})
	}

	result := s.ingester.AddBatch(c.Request().Context(), files)
	status := http.StatusOK
	if result.Succeeded == 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result)
}

func (s *Server) deleteDocument(c echo.Context) error {
	name := c.Param("filename")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	res := s.ingester.DeleteDocument(c.Request().Context(), name)
	if !res.Success {
		return c.JSON(http.StatusNotFound, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) modelMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"models": s.metrics.Snapshot()})
}

package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/application/services"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type syncRequest struct {
	Tag string `json:"tag"`
}

// hopHeaders are connection-scoped and never copied onto a replayed response.
var hopHeaders = []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Proxy-Connection", "Trailer", "Content-Length"}

func (s *Server) getWorkerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"state":   string(s.controller.State()),
		"version": s.controller.Version(),
	})
}

func (s *Server) installWorker(c echo.Context) error {
	if err := s.controller.Install(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return s.getWorkerStatus(c)
}

func (s *Server) activateWorker(c echo.Context) error {
	if err := s.controller.Activate(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return s.getWorkerStatus(c)
}

func (s *Server) syncWorker(c echo.Context) error {
	req := syncRequest{Tag: offline.SyncTagUserData}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	n, err := s.controller.Sync(c.Request().Context(), req.Tag)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"tag": req.Tag, "notified": n})
}

// workerEvents streams controller messages to one client as Server-Sent Events.
func (s *Server) workerEvents(c echo.Context) error {
	if s.events == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event stream is not available")
	}
	client, unregister := s.events.Register()
	defer unregister()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(s.config.EventsHeartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case msg, ok := <-client.Messages:
			if !ok {
				return nil
			}
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", client.ID, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// proxy hands every request outside the API to the offline controller, as a
// page fetch on the configured origin.
func (s *Server) proxy(c echo.Context) error {
	req, err := s.interceptedRequest(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, strategy, err := s.controller.Handle(c.Request().Context(), req)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"url": req.Key(), "strategy": strategy}).WithError(err).Warn("intercepted request failed")
		}
		if errors.Is(err, services.ErrNoCachedResponse) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "offline and not cached")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "upstream unavailable")
	}

	header := c.Response().Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
	header.Set("X-Offline-Strategy", string(strategy))

	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = http.DetectContentType(resp.Body)
	}
	return c.Blob(resp.Status, contentType, resp.Body)
}

func (s *Server) interceptedRequest(c echo.Context) (*offline.Request, error) {
	r := c.Request()
	ref, err := url.Parse(r.URL.RequestURI())
	if err != nil {
		return nil, err
	}
	target := ref
	if s.config.Origin != nil {
		target = s.config.Origin.ResolveReference(ref)
	}

	header := r.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	header.Del("Authorization")

	req := &offline.Request{
		Method: r.Method,
		URL:    target,
		Mode:   r.Header.Get("Sec-Fetch-Mode"),
		Header: header,
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = body
	}
	return req, nil
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/serviceworker"
	"github.com/labstack/echo/v4"
)

// HeaderSource tells callers where an intercepted response came from:
// cache, network, fallback or passthrough.
const HeaderSource = "X-Gopos-Source"

func (s *Server) registerInterceptRoute() {
	if s.cfg.Registration == nil {
		return
	}
	s.echo.Any("/*", s.handleIntercept)
}

// handleIntercept hands the request to the offline cache manager and
// writes back whatever it answers with.
func (s *Server) handleIntercept(c echo.Context) error {
	req := c.Request()
	res, err := s.cfg.Registration.HandleFetch(req.Context(), req)
	if err != nil {
		if errors.Is(err, serviceworker.ErrCrossOrigin) || errors.Is(err, network.ErrForeignTarget) {
			s.log.Warn("refused cross-origin request",
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()))
			c.Response().Header().Set(HeaderSource, string(serviceworker.SourceError))
			return c.JSON(http.StatusMisdirectedRequest, map[string]string{"error": "Cross-origin request refused"})
		}
		if errors.Is(err, network.ErrNetwork) {
			s.log.Warn("upstream unavailable",
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.Error(err))
			c.Response().Header().Set(HeaderSource, string(serviceworker.SourceError))
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "Upstream unavailable"})
		}
		return err
	}
	return writeResult(c, res)
}

func writeResult(c echo.Context, res *serviceworker.Result) error {
	resp := res.Response
	h := c.Response().Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	// the body is buffered, so the length is known
	head := c.Request().Method == http.MethodHead
	if !head && resp.Status != http.StatusNoContent && resp.Status != http.StatusNotModified {
		h.Set(echo.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	}
	h.Set(HeaderSource, string(res.Source))
	c.Response().WriteHeader(resp.Status)
	if head || len(resp.Body) == 0 {
		return nil
	}
	_, err := c.Response().Write(resp.Body)
	return err
}

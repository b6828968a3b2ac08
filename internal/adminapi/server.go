// Package adminapi exposes a small HTTP/JSON introspection and control
// surface over a running HostPeer: list connected clients, list bound
// objects and their authority state, list registered message types, and
// force-disconnect a client or delegate/revoke a bound object's authority
// (spec §4.9, §4.10).
package adminapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/peer"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
)

// Server is the Echo application wrapping a HostPeer.
type Server struct {
	echo   *echo.Echo
	host   *peer.HostPeer
	logger *slog.Logger
}

// New constructs an Echo app exposing host's introspection and control
// routes.
func New(host *peer.HostPeer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	s := &Server{echo: e, host: host, logger: logger}
	s.registerRoutes()
	return s
}

// requestLogger returns Echo middleware that logs each HTTP request via slog.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Debug("admin http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/clients", s.handleListClients)
	s.echo.POST("/api/clients/:id/disconnect", s.handleDisconnectClient)
	s.echo.GET("/api/objects", s.handleListObjects)
	s.echo.POST("/api/objects/:id/authority", s.handleDelegateAuthority)
	s.echo.DELETE("/api/objects/:id/authority", s.handleRevokeAuthority)
	s.echo.GET("/api/messagetypes", s.handleListMessageTypes)
}

// Run starts Echo on addr and blocks until err or listener failure. Callers
// that want graceful shutdown should call Echo().Shutdown(ctx) from another
// goroutine.
func (s *Server) Run(addr string) error {
	err := s.echo.Start(addr)
	if err != nil && errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: len(s.host.Clients()),
	})
}

type clientInfo struct {
	ClientID   uint32  `json:"client_id"`
	Remote     uint64  `json:"remote_handle"`
	RTTMicros  int64   `json:"rtt_micros,omitempty"`
	RTTUnknown bool    `json:"rtt_unknown,omitempty"`
	OffsetNs   *int64  `json:"clock_offset_ns,omitempty"`
}

func (s *Server) handleListClients(c echo.Context) error {
	clients := s.host.Clients()
	out := make([]clientInfo, 0, len(clients))
	for _, client := range clients {
		info := clientInfo{ClientID: uint32(client)}
		if remote, ok := s.host.ClientRemote(client); ok {
			info.Remote = uint64(remote)
		}
		rtt, err := s.host.ClientRoundTripTime(client)
		if err != nil {
			info.RTTUnknown = true
		} else {
			info.RTTMicros = rtt.Microseconds()
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleDisconnectClient(c echo.Context) error {
	client, err := parseClientID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.host.ForceDisconnectClient(client); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return echo.NewHTTPError(http.StatusNotFound, "client not connected")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type objectInfo struct {
	ObjectID  uint32 `json:"object_id"`
	GUID      string `json:"guid"`
	Delegate  uint32 `json:"delegate_client_id,omitempty"`
	Delegated bool   `json:"delegated"`
}

func (s *Server) handleListObjects(c echo.Context) error {
	entries := s.host.BoundObjects().All()
	out := make([]objectInfo, 0, len(entries))
	for _, e := range entries {
		info := objectInfo{ObjectID: uint32(e.ID), GUID: e.GUID.String()}
		if delegate, delegated := s.host.BoundObjects().DelegateOf(e.ID); delegated {
			info.Delegate = uint32(delegate)
			info.Delegated = true
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, out)
}

type delegateRequest struct {
	ClientID uint32 `json:"client_id"`
}

func (s *Server) handleDelegateAuthority(c echo.Context) error {
	objectID, err := parseObjectID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req delegateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	client := netid.ClientIdentifier(req.ClientID)
	if err := s.host.DelegateBoundObjectAuthority(objectID, client); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRevokeAuthority(c echo.Context) error {
	objectID, err := parseObjectID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.host.RevokeBoundObjectAuthority(objectID); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type messageTypeInfo struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	Direction string `json:"direction"`
}

func (s *Server) handleListMessageTypes(c echo.Context) error {
	types := s.host.MessageTypes().All()
	out := make([]messageTypeInfo, 0, len(types))
	for _, mt := range types {
		name := ""
		if mt.ID < msgtype.Identifier(msgtype.DefaultCount) {
			name = msgtype.DefaultMessageType(mt.ID).String()
		}
		out = append(out, messageTypeInfo{
			ID:        uint32(mt.ID),
			Name:      name,
			Kind:      kindString(mt.Flags.Kind),
			Direction: directionString(mt.Flags.Direction),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func kindString(k msgtype.Kind) string {
	switch k {
	case msgtype.KindPlain:
		return "plain"
	case msgtype.KindObjectFunction:
		return "object_function"
	case msgtype.KindComponentFunction:
		return "component_function"
	case msgtype.KindDataComponentFunction:
		return "data_component_function"
	case msgtype.KindPropertyStream:
		return "property_stream"
	default:
		return "unknown"
	}
}

func directionString(d msgtype.Direction) string {
	switch {
	case d&msgtype.FromHost != 0 && d&msgtype.FromClient != 0:
		return "bidirectional"
	case d&msgtype.FromHost != 0:
		return "host_to_client"
	case d&msgtype.FromClient != 0:
		return "client_to_host"
	default:
		return "none"
	}
}

func parseClientID(s string) (netid.ClientIdentifier, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return netid.InvalidClient, errors.New("invalid client id")
	}
	return netid.ClientIdentifier(n), nil
}

func parseObjectID(s string) (netid.BoundObjectIdentifier, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return netid.InvalidBoundObject, errors.New("invalid object id")
	}
	return netid.BoundObjectIdentifier(n), nil
}

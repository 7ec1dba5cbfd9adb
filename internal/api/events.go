package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/NowakAdmin/DeviceHub/internal/center"
)

const eventWriteTimeout = 5 * time.Second

// EventStream pushes center events to websocket clients. Clients pick the
// codec with ?codec=json (default) or ?codec=msgpack and may narrow the stream
// to one device with ?device=name.
type EventStream struct {
	center   DeviceCenter
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewEventStream accepts same-origin browsers, clients that send no Origin
// header, and the listed origins (scheme://host[:port]).
func NewEventStream(c DeviceCenter, logger zerolog.Logger, allowedOrigins []string) *EventStream {
	return &EventStream{
		center: c,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

func (s *EventStream) HandleEvents(c echo.Context) error {
	codec := c.QueryParam("codec")
	if codec == "" {
		codec = "json"
	}
	if codec != "json" && codec != "msgpack" {
		return NewBadRequestError("codec must be json or msgpack", errUnknownCodec)
	}
	device := c.QueryParam("device")

	// Subscribe before the handshake completes so no event after it is missed.
	sub := s.center.Subscribe()
	defer sub.Unsubscribe()

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer ws.Close()

	s.logger.Debug().Str("remote", c.RealIP()).Str("codec", codec).Msg("event stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug().Err(err).Msg("event stream read failed")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(eventWriteTimeout))
				return nil
			}
			if device != "" && ev.Device != device {
				continue
			}
			if err := s.write(ws, codec, ev); err != nil {
				s.logger.Debug().Err(err).Msg("event stream write failed")
				return nil
			}
		}
	}
}

func (s *EventStream) write(ws *websocket.Conn, codec string, ev center.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	if codec == "msgpack" {
		data, err := msgpack.Marshal(&ev)
		if err != nil {
			return err
		}
		return ws.WriteMessage(websocket.BinaryMessage, data)
	}
	return ws.WriteJSON(ev)
}

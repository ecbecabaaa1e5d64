package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/control"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/publish"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// Snapshot message types
const (
	MessagePath = "path"
	MessageMass = "mass"
)

// StreamMessage is one pushed snapshot change. Cleared is set when the
// channel was reset; the payload is then absent.
type StreamMessage struct {
	Kind    control.Kind        `json:"kind"`
	Type    string              `json:"type"`
	Cleared bool                `json:"cleared,omitempty"`
	Path    *models.PathOverlay `json:"path,omitempty"`
	Mass    *models.MassChart   `json:"mass,omitempty"`
}

// watchSnapshots polls both channels of pub every interval and sends each
// change. Sends are serialized. It returns when ctx is done or a send fails.
func watchSnapshots(ctx context.Context, kind control.Kind, pub *publish.Publisher, interval time.Duration, send func(StreamMessage) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	emit := func(msg StreamMessage) error {
		mu.Lock()
		defer mu.Unlock()
		return send(msg)
	}

	paths := publish.NewPoller(pub.Path, (*models.PathOverlay).Equal)
	charts := publish.NewPoller(pub.Mass, (*models.MassChart).Equal)

	errs := make(chan error, 2)
	go func() {
		errs <- paths.Run(ctx, interval, func(o *models.PathOverlay) error {
			return emit(StreamMessage{Kind: kind, Type: MessagePath, Cleared: o == nil, Path: o})
		})
	}()
	go func() {
		errs <- charts.Run(ctx, interval, func(c *models.MassChart) error {
			return emit(StreamMessage{Kind: kind, Type: MessageMass, Cleared: c == nil, Mass: c})
		})
	}()

	err := <-errs
	cancel()
	if second := <-errs; err == nil || errors.Is(err, context.Canceled) {
		err = second
	}
	return err
}

// handleStream handles GET /v1/searches/{kind}/stream as a websocket
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request, kind control.Kind) {
	pub, err := s.controller.Publisher(kind)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "kind", kind, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the reader only watches for the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = watchSnapshots(ctx, kind, pub, s.streamInterval, func(msg StreamMessage) error {
		if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return err
		}
		return conn.WriteJSON(msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("snapshot stream ended", "kind", kind, "error", err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

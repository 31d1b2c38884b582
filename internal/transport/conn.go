package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/auth"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
	"github.com/mhalvorsen/achievo/internal/scan"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// CloudGateway is what the transport needs from the cloud reconciler: guest
// views plus the three snapshot operations against the remote server.
type CloudGateway interface {
	GuestLibrary(ctx context.Context, shortID string) (*model.GuestLibrary, error)
	Status(ctx context.Context, token string) (*model.SyncStatus, error)
	Push(ctx context.Context, token, accountID string) (*model.SyncStatus, error)
	Pull(ctx context.Context, token, accountID string) ([]model.Game, error)
}

// ScanEngine is the slice of the scan engine the transport drives.
type ScanEngine interface {
	Start(ctx context.Context, accountID string, opts scan.Options) (<-chan scan.ProgressEvent, error)
	Cancel(accountID string) bool
}

// Deps are the collaborators a connection dispatches into.
type Deps struct {
	Verifier *auth.Verifier
	Store    repository.LocalStore
	Engine   ScanEngine
	Cloud    CloudGateway
	Logger   *slog.Logger
}

// Conn is the actor for one WebSocket connection. The reader goroutine owns
// all mutable state (claims, scanning flag); the writer goroutine drains the
// send channel. Nothing else touches either.
type Conn struct {
	ws   *websocket.Conn
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	send   chan Envelope

	claims   *auth.Claims
	token    string // raw session token, forwarded on cloud calls
	scanning bool
}

func newConn(ctx context.Context, ws *websocket.Conn, deps Deps) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	return &Conn{
		ws:     ws,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan Envelope, sendBufferSize),
	}
}

// run drives the connection until the peer disconnects or the context ends.
// A scan started on this connection is cancelled when the connection goes
// away; its progress has nowhere to go.
func (c *Conn) run() {
	go c.writeLoop()
	c.readLoop()

	if c.scanning && c.claims != nil {
		c.deps.Engine.Cancel(c.claims.AccountID)
	}
	c.cancel()
	c.ws.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				// Closing the socket here unblocks the reader, which does
				// not watch the context while parked in ReadMessage.
				c.cancel()
				c.ws.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// reply queues a message for the writer. Drops the message when the
// connection is already going away.
func (c *Conn) reply(msgType string, payload any) {
	select {
	case c.send <- mustEnvelope(msgType, payload):
	case <-c.ctx.Done():
	}
}

func (c *Conn) replyErr(err error) {
	var appErr *apperror.AppError
	msg := "internal error"
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message
	case err != nil:
		c.deps.Logger.Error("request failed", slog.String("error", err.Error()))
	}
	c.reply(TypeError, errorPayload{Message: msg})
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.reply(TypeError, errorPayload{Message: "malformed message"})
			continue
		}
		c.dispatch(env)

		select {
		case <-c.ctx.Done():
			return
		default:
		}
	}
}

// dispatch routes one client message. Everything except authenticate, ping
// and guest views requires a verified session on this connection.
func (c *Conn) dispatch(env Envelope) {
	switch env.Type {
	case TypePing:
		c.reply(TypePong, nil)
		return
	case TypeAuthenticate:
		c.handleAuthenticate(env.Payload)
		return
	case TypeViewGuest:
		c.handleViewGuest(env.Payload)
		return
	}

	if c.claims == nil {
		c.reply(TypeAuthError, errorPayload{Message: "valid session required"})
		return
	}

	switch env.Type {
	case TypeFetchGames:
		c.handleFetchGames()
	case TypeFetchAchievements:
		c.handleFetchAchievements(env.Payload)
	case TypeFetchHistory:
		c.handleFetchHistory()
	case TypeSyncFromSteam:
		c.startScan(scan.Options{Recent: true})
	case TypeFullScan:
		var p fullScanPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				c.reply(TypeError, errorPayload{Message: "malformed payload"})
				return
			}
		}
		c.startScan(scan.Options{Force: p.Force})
	case TypeRefreshGame:
		var p refreshGamePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.AppID == 0 {
			c.reply(TypeError, errorPayload{Message: "refresh_game needs an appid"})
			return
		}
		c.startScan(scan.Options{AppID: p.AppID})
	case TypeCancelScan:
		if !c.deps.Engine.Cancel(c.claims.AccountID) {
			c.reply(TypeError, errorPayload{Message: "no scan is running"})
		}
	case TypeCloudStatus:
		status, err := c.deps.Cloud.Status(c.ctx, c.token)
		if err != nil {
			c.replyErr(err)
			return
		}
		c.reply(TypeCloudState, status)
	case TypeCloudUpload:
		status, err := c.deps.Cloud.Push(c.ctx, c.token, c.claims.AccountID)
		if err != nil {
			c.replyErr(err)
			return
		}
		c.reply(TypeCloudSynced, status)
	case TypeCloudDownload:
		games, err := c.deps.Cloud.Pull(c.ctx, c.token, c.claims.AccountID)
		if err != nil {
			c.replyErr(err)
			return
		}
		c.reply(TypeGames, games)
	default:
		c.reply(TypeError, errorPayload{Message: "unknown message type: " + env.Type})
	}
}

func (c *Conn) handleAuthenticate(payload json.RawMessage) {
	var p authenticatePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Token == "" {
		c.reply(TypeAuthError, errorPayload{Message: "valid session required"})
		return
	}
	claims, err := c.deps.Verifier.Verify(p.Token)
	if err != nil {
		c.reply(TypeAuthError, errorPayload{Message: "valid session required"})
		return
	}
	c.claims = claims
	c.token = p.Token
	c.deps.Logger.Info("connection authenticated", slog.String("accountID", claims.AccountID))
	c.reply(TypeAuthenticated, claims)
}

func (c *Conn) handleFetchGames() {
	games, err := c.deps.Store.ListGames(c.ctx, c.claims.AccountID)
	if err != nil {
		c.replyErr(err)
		return
	}
	c.reply(TypeGames, games)
}

func (c *Conn) handleFetchAchievements(payload json.RawMessage) {
	var p fetchAchievementsPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.AppID == 0 {
		c.reply(TypeError, errorPayload{Message: "fetch_achievements needs an appid"})
		return
	}
	achievements, err := c.deps.Store.ListAchievements(c.ctx, c.claims.AccountID, p.AppID)
	if err != nil {
		c.replyErr(err)
		return
	}
	c.reply(TypeAchievements, achievements)
}

type historyPayload struct {
	Runs         []model.RunHistoryEntry         `json:"runs"`
	Achievements []model.AchievementHistoryEntry `json:"achievements"`
}

func (c *Conn) handleFetchHistory() {
	runs, err := c.deps.Store.ListRunHistory(c.ctx, c.claims.AccountID)
	if err != nil {
		c.replyErr(err)
		return
	}
	achievements, err := c.deps.Store.ListAchievementHistory(c.ctx, c.claims.AccountID)
	if err != nil {
		c.replyErr(err)
		return
	}
	c.reply(TypeHistory, historyPayload{Runs: runs, Achievements: achievements})
}

func (c *Conn) handleViewGuest(payload json.RawMessage) {
	var p viewGuestPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ShortID == "" {
		c.reply(TypeGuestNotFound, nil)
		return
	}
	lib, err := c.deps.Cloud.GuestLibrary(c.ctx, p.ShortID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			c.reply(TypeGuestNotFound, nil)
			return
		}
		c.replyErr(err)
		return
	}
	c.reply(TypeGuestLibrary, lib)
}

// startScan launches a scan session and forwards its event stream to the
// peer. Progress rides on sync_progress; a successful finish additionally
// gets sync_complete with the summary and the refreshed game list.
func (c *Conn) startScan(opts scan.Options) {
	accountID := c.claims.AccountID
	events, err := c.deps.Engine.Start(c.ctx, accountID, opts)
	if err != nil {
		c.replyErr(err)
		return
	}
	c.scanning = true

	go func() {
		var last scan.ProgressEvent
		for ev := range events {
			last = ev
			c.reply(TypeSyncProgress, ev)
		}

		if last.Phase == scan.PhaseDone {
			games, err := c.deps.Store.ListGames(c.ctx, accountID)
			if err != nil {
				c.replyErr(err)
				return
			}
			summary := scan.Summary{}
			if last.Summary != nil {
				summary = *last.Summary
			}
			c.reply(TypeSyncComplete, scan.Result{Summary: summary, Games: games})
		}
	}()
}

// soundbox Concentration
//
// A board is dealt from the sound catalog: amount sounds are drawn at
// random, half of them are placed twice, and the cards are shuffled. The
// browser plays each card by URL when it is turned over.
//
// Features:
// - GET /new/:amount deals a board and redirects to /game/:gameid
// - amount must be even and between 1 and the catalog size
// - Board layout as JSON at /game/:gameid/grid
// - WebSocket per board at /game/:gameid/ws relays card flips to every
//   viewer of the same board; no turn or score state is kept server-side
// - Viewers identified by cookie (viewerID)
// - Boards auto-reaped after the configurable idle timeout
// - Random 8-char board IDs via crypto/rand, with server-side collision check
// - QR code of the board URL at /game/:gameid/qr, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/soundbox/grid"
	"github.com/Seednode/soundbox/sounds"
)

// Card is one position on a board.
type Card struct {
	Sound string `json:"sound"`
	URL   string `json:"url"`
}

// Messages coming from clients
type ClientMessage struct {
	Type  string `json:"type"`            // "flip"
	Index *int   `json:"index,omitempty"` // flip
}

// BoardMessage describes the whole board; sent on connect and served at
// /game/:gameid/grid.
type BoardMessage struct {
	Type      string    `json:"type"` // "board"
	ID        string    `json:"id"`
	Amount    int       `json:"amount"`
	Cards     []Card    `json:"cards"`
	CreatedAt time.Time `json:"created_at"`
}

// FlipMessage tells every viewer that a card was turned over.
type FlipMessage struct {
	Type  string `json:"type"` // "flip"
	Index int    `json:"index"`
	Card  Card   `json:"card"`
	By    string `json:"by"` // short tag of the flipping viewer
}

// ViewersMessage reports how many clients are watching a board.
type ViewersMessage struct {
	Type    string `json:"type"` // "viewers"
	Viewers int    `json:"viewers"`
}

// SimpleMessage is for generic notifications sent to a single client.
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Viewer struct {
	conn     *websocket.Conn
	send     chan any
	viewerID string
}

func (v *Viewer) tag() string {
	if len(v.viewerID) > 6 {
		return v.viewerID[:6]
	}
	return v.viewerID
}

type flipRequest struct {
	viewer *Viewer
	index  int
}

type Board struct {
	id     string
	amount int
	cards  []Card

	clients map[*Viewer]bool

	register chan *Viewer
	unreg    chan *Viewer
	flips    chan flipRequest
	quit     chan struct{}
	stopOnce sync.Once
	stopped  bool

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newBoard(id string, g grid.Grid, locator *sounds.Locator) *Board {
	now := time.Now()

	cards := make([]Card, len(g))
	for i, sound := range g {
		cards[i] = Card{
			Sound: sound,
			URL:   locator.SoundURL(sounds.Entry{Sound: sound}),
		}
	}

	return &Board{
		id:         id,
		amount:     len(g),
		cards:      cards,
		clients:    make(map[*Viewer]bool),
		register:   make(chan *Viewer),
		unreg:      make(chan *Viewer),
		flips:      make(chan flipRequest),
		quit:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (b *Board) message() BoardMessage {
	return BoardMessage{
		Type:      "board",
		ID:        b.id,
		Amount:    b.amount,
		Cards:     b.cards,
		CreatedAt: b.createdAt,
	}
}

func (b *Board) run(cfg *Config) {
	for {
		select {
		case <-b.quit:
			return

		case v := <-b.register:
			if !b.join(v) {
				return
			}

		case v := <-b.unreg:
			b.mu.Lock()
			b.lastActive = time.Now()

			if _, ok := b.clients[v]; ok {
				delete(b.clients, v)
				close(v.send)
			}

			b.broadcastLocked(ViewersMessage{
				Type:    "viewers",
				Viewers: len(b.clients),
			})
			b.mu.Unlock()

		case fr := <-b.flips:
			b.handleFlip(cfg, fr)
		}
	}
}

// join adds v to the board. A board that has already stopped closes v
// instead and reports false.
func (b *Board) join(v *Viewer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		close(v.send)
		if v.conn != nil {
			_ = v.conn.Close()
		}

		return false
	}

	b.lastActive = time.Now()
	b.clients[v] = true

	v.send <- b.message()

	b.broadcastLocked(ViewersMessage{
		Type:    "viewers",
		Viewers: len(b.clients),
	})

	return true
}

// broadcastLocked sends msg to every viewer, dropping viewers whose send
// buffer is full.
func (b *Board) broadcastLocked(msg any) {
	for client := range b.clients {
		select {
		case client.send <- msg:
		default:
			delete(b.clients, client)
			close(client.send)
		}
	}
}

// handleFlip checks the index against the board and relays it.
func (b *Board) handleFlip(cfg *Config, fr flipRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastActive = time.Now()

	if fr.index < 0 || fr.index >= len(b.cards) {
		if _, ok := b.clients[fr.viewer]; !ok {
			return
		}

		select {
		case fr.viewer.send <- SimpleMessage{
			Type:    "flip_error",
			Message: fmt.Sprintf("There is no card %d on this board.", fr.index),
		}:
		default:
			delete(b.clients, fr.viewer)
			close(fr.viewer.send)
		}
		return
	}

	logf(cfg, "GAMES: Viewer %s flipped card %d on %s", fr.viewer.tag(), fr.index, b.id)

	b.broadcastLocked(FlipMessage{
		Type:  "flip",
		Index: fr.index,
		Card:  b.cards[fr.index],
		By:    fr.viewer.tag(),
	})
}

// submit hands a request to the board loop unless the board has stopped.
func submit[T any](b *Board, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-b.quit:
		return false
	}
}

// stop ends the board loop and disconnects all viewers (used by reaper).
func (b *Board) stop() {
	b.stopOnce.Do(func() {
		close(b.quit)
	})

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true

	for v := range b.clients {
		close(v.send)
		_ = v.conn.Close()
		delete(b.clients, v)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const viewerCookieName = "soundbox_id"

func getOrSetViewerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(viewerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		logf(cfg, "ERROR: rand.Read: %v", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     viewerCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// BoardManager holds the dealt boards keyed by ID, so each /game/$gameid
// is its own isolated session.
type BoardManager struct {
	mu          sync.Mutex
	boards      map[string]*Board
	idleTimeout time.Duration
}

func newBoardManager(idleTimeout time.Duration) *BoardManager {
	bm := &BoardManager{
		boards:      make(map[string]*Board),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go bm.reaperLoop()
	}
	return bm
}

func (bm *BoardManager) get(id string) (*Board, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if board, ok := bm.boards[id]; ok {
		return board, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBoard, id)
}

// add registers a board for g under a fresh ID and starts its loop.
func (bm *BoardManager) add(cfg *Config, g grid.Grid, locator *sounds.Locator) *Board {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	id := bm.newBoardIDLocked()
	board := newBoard(id, g, locator)
	bm.boards[id] = board
	go board.run(cfg)

	return board
}

// newBoardIDLocked generates a crypto-random board ID that doesn't collide
// with existing boards.
func (bm *BoardManager) newBoardIDLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := bm.boards[id]; !exists {
			return id
		}
	}
}

// reaperLoop periodically removes boards that have been idle longer than idleTimeout.
func (bm *BoardManager) reaperLoop() {
	ticker := time.NewTicker(bm.idleTimeout / 2)
	for range ticker.C {
		bm.reap(time.Now().Add(-bm.idleTimeout))
	}
}

func (bm *BoardManager) reap(cutoff time.Time) int {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	reaped := 0
	for id, board := range bm.boards {
		board.mu.RLock()
		last := board.lastActive
		board.mu.RUnlock()

		if last.Before(cutoff) {
			delete(bm.boards, id)
			go board.stop()
			reaped++
		}
	}

	return reaped
}

// dealBoard draws amount sounds from catalog and deals them as amount/2
// pairs.
func dealBoard(builder *grid.Builder, catalog []sounds.Entry, amount int) (grid.Grid, error) {
	if amount%2 != 0 {
		return nil, fmt.Errorf("%w: %d is odd", grid.ErrInvalidAmount, amount)
	}

	names := sounds.Distinct(catalog)
	distinct := make([]sounds.Entry, len(names))
	for i, name := range names {
		distinct[i] = sounds.Entry{Sound: name}
	}

	picked, err := builder.Sample(distinct, amount)
	if err != nil {
		return nil, err
	}

	return builder.Build(picked, amount/2)
}

// newBoardHandler handles GET /new/:amount by dealing a board and
// redirecting to /game/:gameid.
func newBoardHandler(cfg *Config, catalog *sounds.Client, builder *grid.Builder, bm *BoardManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		param := ps.ByName("amount")
		if !isEven(param) {
			http.NotFound(w, r)
			return
		}
		amount, _ := strconv.Atoi(param)

		entries, err := catalog.Catalog(r.Context())
		if err != nil {
			logf(cfg, "ERROR: Fetching catalog for %s: %v", realIP(r), err)
			serveError(cfg, w, err)
			return
		}

		g, err := dealBoard(builder, entries, amount)
		if err != nil {
			if !errors.Is(err, grid.ErrInvalidAmount) {
				logf(cfg, "ERROR: Dealing %d cards: %v", amount, err)
			}
			serveError(cfg, w, err)
			return
		}

		board := bm.add(cfg, g, catalog.Locator())
		logf(cfg, "GAMES: Created board %s with %d cards for %s", board.id, amount, realIP(r))

		http.Redirect(w, r, cfg.prefix+"/game/"+board.id, http.StatusTemporaryRedirect)
	}
}

func serveJSON(cfg *Config, w http.ResponseWriter, v any, errs chan<- error) int {
	data, err := json.Marshal(v)
	if err != nil {
		serveError(cfg, w, err)
		return 0
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	securityHeaders(cfg, w)

	return writeAll(w, data, errs)
}

func serveSounds(cfg *Config, catalog *sounds.Client, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		entries, err := catalog.Catalog(r.Context())
		if err != nil {
			logf(cfg, "ERROR: Fetching catalog for %s: %v", realIP(r), err)
			serveError(cfg, w, err)
			return
		}

		written := serveJSON(cfg, w, entries, errs)

		logf(cfg, "SERVE: Sound listing (%s) to %s in %s",
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveBoardGrid(cfg *Config, bm *BoardManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		board, err := bm.get(ps.ByName("gameid"))
		if err != nil {
			serveError(cfg, w, err)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		serveJSON(cfg, w, board.message(), errs)
	}
}

// WebSocket handler that picks the board based on :gameid
func serveWSForManager(cfg *Config, bm *BoardManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		board, err := bm.get(ps.ByName("gameid"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		viewerID := getOrSetViewerID(cfg, w, r)
		if viewerID == "" {
			http.Error(w, "unable to assign viewer id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrading websocket for %s: %v", realIP(r), err)
			return
		}

		viewer := &Viewer{
			conn:     conn,
			send:     make(chan any, 16),
			viewerID: viewerID,
		}

		if !submit(board, board.register, viewer) {
			_ = conn.Close()
			return
		}

		go viewer.writePump()
		viewer.readPump(board)
	}
}

func (v *Viewer) readPump(b *Board) {
	defer func() {
		submit(b, b.unreg, v)
		_ = v.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := v.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "flip":
			if msg.Index == nil {
				continue
			}
			if !submit(b, b.flips, flipRequest{viewer: v, index: *msg.Index}) {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (v *Viewer) writePump() {
	defer v.conn.Close()

	for msg := range v.send {
		if err := v.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the board URL using go-qrcode.
func qrHandler(cfg *Config, bm *BoardManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := bm.get(ps.ByName("gameid")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the board URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

//go:embed assets/concentration/index.html
var indexHTML []byte

func getIndexHandler(cfg *Config, bm *BoardManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := bm.get(ps.ByName("gameid")); err != nil {
			serveError(cfg, w, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetViewerID(cfg, w, r)

		writeAll(w, indexHTML, errs)
	}
}

// registerConcentrationGame sets up routes so that:
//   - /new/:amount          → deals a board and redirects to it
//   - /sounds               → the full catalog as JSON
//   - /game/:gameid         → HTML client
//   - /game/:gameid/grid    → board layout as JSON
//   - /game/:gameid/ws      → WebSocket for that board
//   - /game/:gameid/qr      → PNG QR code for that board URL
func registerConcentrationGame(cfg *Config, catalog *sounds.Client, builder *grid.Builder, mux *httprouter.Router, errs chan<- error) *BoardManager {
	bm := newBoardManager(cfg.sessionTimeout)

	mux.GET(cfg.prefix+"/new/:amount", newBoardHandler(cfg, catalog, builder, bm))

	mux.GET(cfg.prefix+"/sounds", serveSounds(cfg, catalog, errs))

	mux.GET(cfg.prefix+"/game/:gameid", getIndexHandler(cfg, bm, errs))

	mux.GET(cfg.prefix+"/game/:gameid/grid", serveBoardGrid(cfg, bm, errs))

	mux.GET(cfg.prefix+"/game/:gameid/ws", serveWSForManager(cfg, bm))

	mux.GET(cfg.prefix+"/game/:gameid/qr", qrHandler(cfg, bm))

	return bm
}

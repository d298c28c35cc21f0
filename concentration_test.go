package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/soundbox/grid"
	"github.com/Seednode/soundbox/sounds"
)

func TestIsEven(t *testing.T) {
	for _, param := range []string{"0", "2", "48", "-4"} {
		assert.True(t, isEven(param), param)
	}
	for _, param := range []string{"1", "7", "", "abc", "2.0", "4x"} {
		assert.False(t, isEven(param), param)
	}
}

func TestDealBoardInvalidAmount(t *testing.T) {
	b := grid.New(grid.WithSeed(1))

	for _, amount := range []int{0, -2, 3, len(testCatalog) + 1, len(testCatalog) + 2} {
		_, err := dealBoard(b, testCatalog, amount)
		assert.ErrorIs(t, err, grid.ErrInvalidAmount, amount)
	}
}

func TestDealBoard(t *testing.T) {
	b := grid.New(grid.WithSeed(1))

	for _, amount := range []int{2, 4, len(testCatalog)} {
		g, err := dealBoard(b, testCatalog, amount)
		require.NoError(t, err)
		require.Len(t, g, amount)
		require.NoError(t, grid.Validate(g))

		for _, s := range g {
			assert.Contains(t, testCatalog, sounds.Entry{Sound: s})
		}
	}
}

func TestDealBoardDuplicateNames(t *testing.T) {
	b := grid.New(grid.WithSeed(1))
	catalog := []sounds.Entry{{Sound: "a"}, {Sound: "a"}, {Sound: "b"}, {Sound: ""}, {Sound: "b"}, {Sound: "c"}}

	g, err := dealBoard(b, catalog, 2)
	require.NoError(t, err)
	assert.NoError(t, grid.Validate(g))

	_, err = dealBoard(b, catalog, 4)
	assert.ErrorIs(t, err, grid.ErrInvalidAmount)

	status, _ := statusFor(err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNewBoardRoute(t *testing.T) {
	srv := newSoundsServer(t)
	mux := newTestRouter(t, testConfig(srv.URL))

	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/new/0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/new/8").Code)
	assert.Equal(t, http.StatusNotFound, get(t, mux, "/new/3").Code)
	assert.Equal(t, http.StatusNotFound, get(t, mux, "/new/seven").Code)

	rec := get(t, mux, "/new/4")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/game/"), location)
	assert.Len(t, strings.TrimPrefix(location, "/game/"), 8)

	rec = get(t, mux, location)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app.js")
	assert.Contains(t, rec.Header().Get("Set-Cookie"), viewerCookieName)

	rec = get(t, mux, location+"/grid")
	require.Equal(t, http.StatusOK, rec.Code)

	var board BoardMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, "board", board.Type)
	assert.Equal(t, 4, board.Amount)
	require.Len(t, board.Cards, 4)

	g := make(grid.Grid, len(board.Cards))
	for i, c := range board.Cards {
		g[i] = c.Sound
		assert.Equal(t, srv.URL+"/sounds/"+c.Sound, c.URL)
	}
	assert.NoError(t, grid.Validate(g))

	rec = get(t, mux, location+"/qr")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestUnknownBoard(t *testing.T) {
	srv := newSoundsServer(t)
	mux := newTestRouter(t, testConfig(srv.URL))

	for _, target := range []string{"/game/nope", "/game/nope/grid", "/game/nope/qr", "/game/nope/ws"} {
		assert.Equal(t, http.StatusNotFound, get(t, mux, target).Code, target)
	}
}

func TestSoundsListing(t *testing.T) {
	srv := newSoundsServer(t)
	mux := newTestRouter(t, testConfig(srv.URL))

	rec := get(t, mux, "/sounds")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var got []sounds.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, testCatalog, got)
}

func TestPrefixedRoutes(t *testing.T) {
	srv := newSoundsServer(t)
	cfg := testConfig(srv.URL)
	cfg.prefix = "/play/"
	mux := newTestRouter(t, cfg)

	assert.Equal(t, "/play", cfg.prefix)
	assert.Equal(t, http.StatusOK, get(t, mux, "/play/healthz").Code)

	rec := get(t, mux, "/play/new/2")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/play/game/"))
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestBoardRelaysFlips(t *testing.T) {
	soundsSrv := newSoundsServer(t)
	app := httptest.NewServer(newTestRouter(t, testConfig(soundsSrv.URL)))
	defer app.Close()

	client := app.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := client.Get(app.URL + "/new/6")
	require.NoError(t, err)
	resp.Body.Close()
	location := resp.Header.Get("Location")
	require.NotEmpty(t, location)

	wsURL := "ws" + strings.TrimPrefix(app.URL, "http") + location + "/ws"

	alice, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer alice.Close()

	board := readUntil(t, alice, "board")
	assert.Len(t, board["cards"], 6)

	bob, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer bob.Close()

	readUntil(t, bob, "board")
	viewers := readUntil(t, alice, "viewers")
	for viewers["viewers"] != float64(2) {
		viewers = readUntil(t, alice, "viewers")
	}

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "flip", "index": 2}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		flip := readUntil(t, conn, "flip")
		assert.Equal(t, float64(2), flip["index"])
		card := flip["card"].(map[string]any)
		assert.Contains(t, card["url"], "/sounds/")
	}

	require.NoError(t, bob.WriteJSON(map[string]any{"type": "flip", "index": 99}))
	msg := readUntil(t, bob, "flip_error")
	assert.Contains(t, msg["message"], "99")
}

func TestBoardManagerReap(t *testing.T) {
	cfg := testConfig("https://h/")
	locator, err := sounds.NewLocator(cfg.soundsBase)
	require.NoError(t, err)

	bm := newBoardManager(0)
	board := bm.add(cfg, grid.Grid{"a", "b", "b", "a"}, locator)

	got, err := bm.get(board.id)
	require.NoError(t, err)
	assert.Same(t, board, got)

	assert.Equal(t, 0, bm.reap(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, bm.reap(time.Now().Add(time.Hour)))

	_, err = bm.get(board.id)
	assert.ErrorIs(t, err, ErrUnknownBoard)

	select {
	case <-board.quit:
	case <-time.After(5 * time.Second):
		t.Fatal("reaped board did not stop")
	}
}

func TestStoppedBoardRejectsLateViewer(t *testing.T) {
	locator, err := sounds.NewLocator("https://h/")
	require.NoError(t, err)

	board := newBoard("abcdefgh", grid.Grid{"a", "b", "b", "a"}, locator)
	board.stop()

	v := &Viewer{send: make(chan any, 16), viewerID: "late"}
	assert.False(t, board.join(v))

	_, open := <-v.send
	assert.False(t, open, "late viewer's send channel must be closed")
	assert.Empty(t, board.clients)
}

// Package gameserver is the HTTP surface over the game engines. It
// does transport only: decode, dispatch, encode. All rules live in
// the engine packages.
package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/account"
	"github.com/praxisgo/collector/internal/game/catch"
	"github.com/praxisgo/collector/internal/game/compete"
	"github.com/praxisgo/collector/internal/game/control"
	"github.com/praxisgo/collector/internal/game/cover"
)

// Server dispatches HTTP requests to the engines.
type Server struct {
	Addr     string
	Accounts *account.Engine
	Catch    *catch.Engine
	Control  *control.Engine
	Compete  *compete.Engine
	Cover    *cover.Engine
	Log      *slog.Logger
}

// session identifies the calling player. The secret doubles as the
// key the player's secure blobs are encrypted under, so a wrong
// secret cannot read anything.
type session struct {
	Account string `json:"account"`
	Secret  string `json:"secret"`
}

func (s session) valid() bool { return s.Account != "" && s.Secret != "" }

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.Addr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.Log.Info("game server listening", "addr", s.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("game server: %w", err)
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /account/create", s.handleCreate)
	mux.HandleFunc("POST /account/get", s.handleGet)
	mux.HandleFunc("POST /account/team", s.handleSetTeam)
	mux.HandleFunc("POST /account/proxyplay", s.handleProxyPlay)
	mux.HandleFunc("POST /account/password", s.handleChangePassword)
	mux.HandleFunc("POST /account/delete", s.handleDelete)
	mux.HandleFunc("POST /account/graduate", s.handleGraduate)
	mux.HandleFunc("GET /account/tutorials", s.handleTutorials)
	mux.HandleFunc("POST /account/tutorials", s.handleMarkTutorial)

	mux.HandleFunc("POST /catch/enter", s.handleEnter)
	mux.HandleFunc("POST /catch/wild", s.handleWild)
	mux.HandleFunc("POST /catch/vortex", s.handleVortex)
	mux.HandleFunc("POST /catch/challenge", s.handleChallengeDone)
	mux.HandleFunc("GET /creatures", s.handleCreatureData)

	mux.HandleFunc("POST /control/claim", s.handleControlClaim)
	mux.HandleFunc("POST /control/combat", s.handleControlCombat)
	mux.HandleFunc("GET /control/cell", s.handleControlInfo)
	mux.HandleFunc("GET /control/leaderboard", s.handleControlLeaderboard)

	mux.HandleFunc("POST /compete/place", s.handleCompetePlace)
	mux.HandleFunc("POST /compete/attack", s.handleCompeteAttack)
	mux.HandleFunc("GET /compete/leaderboard", s.handleCompeteLeaderboard)

	mux.HandleFunc("POST /cover/place", s.handleCoverPlace)
	mux.HandleFunc("POST /cover/placed", s.handlePlaced)
	mux.HandleFunc("GET /cover/leaderboard", s.handleCoverLeaderboard)

	return mux
}

func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		var zero T
		return zero, false
	}
	return req, true
}

func (s *Server) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("encoding response", "error", err)
	}
}

// fail maps engine errors onto status codes. A bad secret is the
// caller's fault; everything else is ours.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, db.ErrBadSecret) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.Log.Error("request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[session](w, r)
	if !ok {
		return
	}
	if !req.valid() {
		http.Error(w, "account and secret required", http.StatusBadRequest)
		return
	}
	created, err := s.Accounts.Create(r.Context(), req.Account, req.Secret, time.Now().UTC())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !created {
		http.Error(w, "name taken", http.StatusConflict)
		return
	}
	s.reply(w, map[string]bool{"created": true})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[session](w, r)
	if !ok {
		return
	}
	view, err := s.Accounts.Get(r.Context(), req.Account, req.Secret, time.Now().UTC())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if view == nil {
		http.Error(w, "no such account", http.StatusNotFound)
		return
	}
	s.reply(w, view)
}

func (s *Server) handleSetTeam(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Team int `json:"team"`
	}](w, r)
	if !ok {
		return
	}
	picked, err := s.Accounts.SetTeam(r.Context(), req.Account, req.Secret, req.Team)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"picked": picked})
}

func (s *Server) handleProxyPlay(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}](w, r)
	if !ok {
		return
	}
	set, err := s.Accounts.SetProxyPlay(r.Context(), req.Account, req.Secret, req.Lat, req.Lon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"set": set})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		NewSecret string `json:"newSecret"`
	}](w, r)
	if !ok {
		return
	}
	if req.NewSecret == "" {
		http.Error(w, "new secret required", http.StatusBadRequest)
		return
	}
	changed, err := s.Accounts.ChangePassword(r.Context(), req.Account, req.Secret, req.NewSecret)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"changed": changed})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[session](w, r)
	if !ok {
		return
	}
	if err := s.Accounts.Delete(r.Context(), req.Account, req.Secret); err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"deleted": true})
}

func (s *Server) handleGraduate(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		CreatureID int64  `json:"creatureId"`
		Area       string `json:"area"`
	}](w, r)
	if !ok {
		return
	}
	done, err := s.Accounts.Graduate(r.Context(), req.Account, req.Secret, req.CreatureID, req.Area)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"graduated": done})
}

func (s *Server) handleTutorials(w http.ResponseWriter, r *http.Request) {
	acct := r.URL.Query().Get("account")
	if acct == "" {
		http.Error(w, "account required", http.StatusBadRequest)
		return
	}
	viewed, err := s.Accounts.Tutorials(r.Context(), acct)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, viewed)
}

func (s *Server) handleMarkTutorial(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		Account  string `json:"account"`
		Tutorial string `json:"tutorial"`
	}](w, r)
	if !ok {
		return
	}
	if err := s.Accounts.MarkTutorial(r.Context(), req.Account, req.Tutorial); err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"marked": true})
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell10 string `json:"cell10"`
	}](w, r)
	if !ok {
		return
	}
	res, err := s.Catch.Enter(r.Context(), req.Account, req.Secret, req.Cell10, time.Now().UTC())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, res)
}

func (s *Server) handleWild(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell8 string `json:"cell8"`
	}](w, r)
	if !ok {
		return
	}
	live, err := s.Catch.Wild(r.Context(), req.Account, req.Secret, req.Cell8, time.Now().UTC())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, live)
}

func (s *Server) handleVortex(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell8 string `json:"cell8"`
	}](w, r)
	if !ok {
		return
	}
	caught, err := s.Catch.Vortex(r.Context(), req.Account, req.Secret, req.Cell8, time.Now().UTC())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, caught)
}

func (s *Server) handleChallengeDone(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		CreatureID int64 `json:"creatureId"`
	}](w, r)
	if !ok {
		return
	}
	done, err := s.Catch.ChallengeDone(r.Context(), req.Account, req.Secret, req.CreatureID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"granted": done})
}

func (s *Server) handleCreatureData(w http.ResponseWriter, r *http.Request) {
	raw, version, err := s.Catch.CreatureData(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Creature-Data-Version", strconv.FormatInt(version, 10))
	w.Write(raw)
}

func (s *Server) handleControlClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell8      string `json:"cell8"`
		CreatureID int64  `json:"creatureId"`
	}](w, r)
	if !ok {
		return
	}
	committed, err := s.Control.Claim(r.Context(), req.Account, req.Secret, req.Cell8, req.CreatureID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"committed": committed})
}

func (s *Server) handleControlCombat(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell8      string `json:"cell8"`
		CreatureID int64  `json:"creatureId"`
	}](w, r)
	if !ok {
		return
	}
	result, err := s.Control.Combat(r.Context(), req.Account, req.Secret, req.Cell8, req.CreatureID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]int{"result": int(result)})
}

func (s *Server) handleControlInfo(w http.ResponseWriter, r *http.Request) {
	cell8 := r.URL.Query().Get("cell8")
	info, err := s.Control.Info(r.Context(), cell8)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, info)
}

func (s *Server) handleControlLeaderboard(w http.ResponseWriter, r *http.Request) {
	scores, err := s.Control.Leaderboard(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, scores)
}

func (s *Server) handleCompetePlace(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell8      string `json:"cell8"`
		CreatureID int64  `json:"creatureId"`
		NewTotal   int64  `json:"newTotal"`
	}](w, r)
	if !ok {
		return
	}
	res, err := s.Compete.Place(r.Context(), req.Account, req.Secret, req.Cell8, req.CreatureID, req.NewTotal)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, res)
}

func (s *Server) handleCompeteAttack(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell8      string `json:"cell8"`
		CreatureID int64  `json:"creatureId"`
	}](w, r)
	if !ok {
		return
	}
	won, err := s.Compete.Attack(r.Context(), req.Account, req.Secret, req.Cell8, req.CreatureID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]bool{"won": won})
}

func (s *Server) handleCompeteLeaderboard(w http.ResponseWriter, r *http.Request) {
	scores, err := s.Compete.Leaderboard(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, scores)
}

func (s *Server) handleCoverPlace(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell10     string `json:"cell10"`
		CreatureID int64  `json:"creatureId"`
		Fragments  int64  `json:"fragments"`
	}](w, r)
	if !ok {
		return
	}
	delta, err := s.Cover.UpdatePlaced(r.Context(), req.Account, req.Secret, req.Cell10, req.CreatureID, req.Fragments)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, map[string]int64{"fragmentsSpent": delta})
}

func (s *Server) handlePlaced(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[struct {
		session
		Cell10 string `json:"cell10"`
	}](w, r)
	if !ok {
		return
	}
	if req.Cell10 != "" {
		entry, err := s.Cover.PlacedAt(r.Context(), req.Account, req.Secret, req.Cell10)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, entry)
		return
	}
	placed, err := s.Cover.Placed(r.Context(), req.Account, req.Secret)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, placed)
}

func (s *Server) handleCoverLeaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := s.Cover.Leaderboard(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, top)
}

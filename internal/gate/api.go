package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/developingchet/sessiongate/internal/engine"
	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/developingchet/sessiongate/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// API is the thin HTTP glue between the host transport and the gate: it
// turns session-created requests into decisions (the HTTP response is the
// deferral) and accepts fire-and-forget rule mutations.
type API struct {
	ctrl *Controller
	repo storage.Repository
	addr string
	log  zerolog.Logger
}

// NewAPI creates the API server. repo may be nil; /readyz then only checks
// the process is up.
func NewAPI(ctrl *Controller, repo storage.Repository, addr string, log zerolog.Logger) *API {
	return &API{ctrl: ctrl, repo: repo, addr: addr, log: log}
}

// Run serves until ctx is cancelled.
func (a *API) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", a.handleSession)
	mux.HandleFunc("POST /v1/rules", a.handleRuleCreate)
	mux.HandleFunc("DELETE /v1/rules/{subject}", a.handleRuleDelete)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.repo != nil {
			if err := a.repo.Ping(r.Context()); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{
		Addr:    a.addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	a.log.Info().Str("addr", a.addr).Msg("gate API server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

type sessionRequest struct {
	Client struct {
		Name      string  `json:"name"`
		License   *string `json:"license,omitempty"`
		SteamID   *int64  `json:"steam_id,omitempty"`
		IPAddress string  `json:"ip_address"`
	} `json:"client"`
	Session struct {
		ID     uuid.UUID `json:"id"`
		UserID uuid.UUID `json:"user_id"`
	} `json:"session"`
}

// httpDeferrals maps the deferral contract onto an HTTP exchange: Terminate
// records the drop message, and the handler translates the outcome into a
// status code after the decision completes.
type httpDeferrals struct {
	terminated bool
	message    string
}

func (d *httpDeferrals) Terminate(message string) {
	d.terminated = true
	d.message = message
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid session payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Client.IPAddress == "" || req.Session.ID == uuid.Nil {
		http.Error(w, "client.ip_address and session.id are required", http.StatusBadRequest)
		return
	}

	deferrals := &httpDeferrals{}
	a.ctrl.OnSessionCreated(r.Context(), SessionCreated{
		Client: engine.Client{
			Name:      req.Client.Name,
			License:   req.Client.License,
			SteamID:   req.Client.SteamID,
			IPAddress: req.Client.IPAddress,
		},
		Session:   SessionInfo{ID: req.Session.ID, UserID: req.Session.UserID},
		Deferrals: deferrals,
	})

	if !deferrals.terminated {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": deferrals.message})
}

type ruleCreateRequest struct {
	IssuerID  uuid.UUID  `json:"issuer_id"`
	SubjectID uuid.UUID  `json:"subject_id"`
	License   *string    `json:"license,omitempty"`
	SteamID   *int64     `json:"steam_id,omitempty"`
	IPAddress *string    `json:"ip_address,omitempty"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (a *API) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	var req ruleCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid rule payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	m := rules.Matcher{License: req.License, SteamID: req.SteamID, IPAddress: req.IPAddress}
	if err := a.ctrl.CreateRule(req.IssuerID, req.SubjectID, m, req.Reason, req.ExpiresAt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	subject, err := uuid.Parse(r.PathValue("subject"))
	if err != nil {
		http.Error(w, "invalid subject id: "+err.Error(), http.StatusBadRequest)
		return
	}
	issuer, _ := uuid.Parse(r.URL.Query().Get("issuer_id"))
	reason := r.URL.Query().Get("reason")

	if err := a.ctrl.DeleteRule(issuer, subject, reason); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

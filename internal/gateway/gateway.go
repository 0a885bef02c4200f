// Package gateway runs create-or-claim workflows on behalf of UI clients.
// A run starts with an HTTP request, streams its events over websockets and
// waits for the user's decision, which arrives as a separate request.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
	"github.com/renandw/anesthesiaReports-sub000/internal/entitycache"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/websocket"
)

const topicPrefix = "workflow:"

// Config holds the workflows a gateway drives and its timeouts. Zero
// durations take defaults in New.
type Config struct {
	Patients  *dedup.PatientWorkflow
	Surgeries *dedup.SurgeryWorkflow
	Cache     entitycache.Cache
	Logger    zerolog.Logger
	// DecisionTimeout bounds how long a run waits for the user.
	DecisionTimeout time.Duration
	// RunTimeout bounds a whole run.
	RunTimeout time.Duration
	// Retention is how long a finished run stays queryable.
	Retention time.Duration
}

// Gateway runs workflows for UI clients and streams their events.
type Gateway struct {
	cfg      Config
	log      zerolog.Logger
	hub      *websocket.Hub
	sessions *sessions
	unsub    []func()
}

// New builds a gateway and subscribes it to both workflows.
func New(cfg Config) *Gateway {
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = 10 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = cfg.DecisionTimeout + time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 15 * time.Minute
	}
	g := &Gateway{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "gateway").Logger(),
		sessions: &sessions{byID: make(map[string]*session), retention: cfg.Retention},
	}
	g.hub = websocket.NewHub(g.canFollow, g.log)
	g.unsub = append(g.unsub,
		cfg.Patients.Subscribe(observe[dedup.PatientCandidate, dedup.Patient](g)),
		cfg.Surgeries.Subscribe(observe[dedup.SurgeryCandidate, dedup.Surgery](g)),
	)
	return g
}

// Close detaches the gateway from its workflows.
func (g *Gateway) Close() {
	for _, u := range g.unsub {
		u()
	}
}

// RegisterRoutes mounts the workflow, entity and websocket routes on api.
func (g *Gateway) RegisterRoutes(api *echo.Group) {
	wf := api.Group("/workflows", auth.RequireRole(auth.ClinicalRoles...))
	wf.POST("/patients", g.StartPatient)
	wf.POST("/surgeries", g.StartSurgery)
	wf.GET("/:id", g.Get)
	wf.POST("/:id/decision", g.Decide)
	wf.DELETE("/:id", g.Cancel)

	api.GET("/entities/:kind", g.ListEntities, auth.RequireRole(auth.ClinicalRoles...))
	websocket.NewHandler(g.hub).RegisterRoutes(api)
}

func (g *Gateway) canFollow(userID, topic string) bool {
	if len(topic) <= len(topicPrefix) || topic[:len(topicPrefix)] != topicPrefix {
		return false
	}
	_, ok := g.sessions.owned(topic[len(topicPrefix):], userID)
	return ok
}

type startResponse struct {
	RunID string `json:"run_id"`
	Topic string `json:"topic"`
}

// StartPatient starts a patient run from a PatientForm body.
func (g *Gateway) StartPatient(c echo.Context) error {
	var form dedup.PatientForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return start(g, c, g.cfg.Patients, dedup.PatientKind.Name, form)
}

// StartSurgery starts a surgery run from a SurgeryForm body.
func (g *Gateway) StartSurgery(c echo.Context) error {
	var form dedup.SurgeryForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return start(g, c, g.cfg.Surgeries, dedup.SurgeryKind.Name, form)
}

// start launches a run in the background and answers 202 with its id. The
// run outlives the request but keeps its values: caller identity and the
// bearer token the registry client forwards.
func start[F, D any, C dedup.Candidate, E dedup.Entity](g *Gateway, c echo.Context, w *dedup.Workflow[F, D, C, E], kind string, form F) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	id := uuid.NewString()

	base := dedup.WithCaller(context.WithoutCancel(c.Request().Context()), userID)
	ctx, cancel := context.WithCancelCause(base)
	ctx, stop := context.WithTimeout(ctx, g.cfg.RunTimeout)

	s := newSession(id, kind, userID, cancel)
	g.sessions.add(id, s)

	go func() {
		defer stop()
		defer cancel(nil)
		_, err := w.RunWith(ctx, form, dedup.RunOptions[D, C, E]{
			RunID:   id,
			Decider: decider[D, C](g, s),
		})
		s.finish()
		g.publish(id, "finished", s.snapshot())
		if err != nil {
			g.log.Debug().Err(err).Str("run_id", id).Msg("run ended without resolution")
		}
	}()

	return c.JSON(http.StatusAccepted, startResponse{RunID: id, Topic: topicPrefix + id})
}

// decider waits for the caller's intent. A run left without an answer for
// DecisionTimeout fails with ErrNoDecision and can be restarted.
func decider[D any, C dedup.Candidate](g *Gateway, s *session) dedup.Decider[D, C] {
	return func(ctx context.Context, d dedup.Decision[D, C]) (dedup.Intent, error) {
		s.update(func(snap *Snapshot) { snap.Draft = d.Draft })
		timer := time.NewTimer(g.cfg.DecisionTimeout)
		defer timer.Stop()
		select {
		case intent := <-s.decisions:
			return intent, nil
		case <-timer.C:
			return dedup.Intent{}, dedup.ErrNoDecision
		case <-ctx.Done():
			return dedup.Intent{}, context.Cause(ctx)
		}
	}
}

// observe mirrors workflow events into the run's snapshot and topic.
func observe[C dedup.Candidate, E dedup.Entity](g *Gateway) dedup.Observer[C, E] {
	return func(ev dedup.Event[C, E]) {
		s, ok := g.sessions.get(ev.RunID)
		if !ok {
			return
		}
		s.update(func(snap *Snapshot) {
			snap.State = ev.State
			if ev.Candidates != nil {
				snap.Candidates = ev.Candidates
			}
			if ev.Intent != nil {
				snap.Intent = ev.Intent
			}
			if ev.Entity != nil {
				snap.Entity = ev.Entity
				snap.Path = ev.Path
			}
			snap.Error, snap.ErrorKind = ev.Error, ev.ErrorKind
		})
		g.publish(ev.RunID, ev.State.String(), ev)
	}
}

func (g *Gateway) publish(runID, typ string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.log.Error().Err(err).Str("run_id", runID).Msg("marshal run event")
		return
	}
	topic := topicPrefix + runID
	g.hub.Broadcast(topic, websocket.Event{Type: typ, Topic: topic, Timestamp: time.Now().UTC(), Data: data})
}

// Get returns the caller's run snapshot.
func (g *Gateway) Get(c echo.Context) error {
	s, err := g.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.snapshot())
}

// Decide hands the caller's intent to a run awaiting a decision.
func (g *Gateway) Decide(c echo.Context) error {
	s, err := g.session(c)
	if err != nil {
		return err
	}
	var intent dedup.Intent
	if err := c.Bind(&intent); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !s.decide(intent) {
		return echo.NewHTTPError(http.StatusConflict, "run is not awaiting a decision")
	}
	return c.NoContent(http.StatusAccepted)
}

// Cancel aborts a live run. Mutations already sent to the registry still
// complete there.
func (g *Gateway) Cancel(c echo.Context) error {
	s, err := g.session(c)
	if err != nil {
		return err
	}
	if s.snapshot().Done {
		return echo.NewHTTPError(http.StatusConflict, "run already finished")
	}
	s.cancel(dedup.ErrCancelled)
	return c.NoContent(http.StatusAccepted)
}

// entityKinds maps the collection names used in paths to workflow kinds.
var entityKinds = map[string]string{
	"patients":  dedup.PatientKind.Name,
	"surgeries": dedup.SurgeryKind.Name,
}

// ListEntities returns the caller's resolved records of one kind, most
// recent first.
func (g *Gateway) ListEntities(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	kind, ok := entityKinds[c.Param("kind")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown entity kind")
	}
	entries, err := g.cfg.Cache.List(c.Request().Context(), userID, kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": entries})
}

func (g *Gateway) session(c echo.Context) (*session, error) {
	userID, err := caller(c)
	if err != nil {
		return nil, err
	}
	s, ok := g.sessions.owned(c.Param("id"), userID)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return s, nil
}

func caller(c echo.Context) (string, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing caller identity")
	}
	return userID, nil
}

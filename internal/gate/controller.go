package gate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/developingchet/sessiongate/internal/bus"
	"github.com/developingchet/sessiongate/internal/engine"
	"github.com/developingchet/sessiongate/internal/metrics"
	"github.com/developingchet/sessiongate/internal/pool"
	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/developingchet/sessiongate/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Controller makes the admit/drop decision for each session-created
// notification and accepts rule mutation requests. Mutations are
// fire-and-forget: validation failures are returned to the transport, store
// failures are handled on the worker pool and surfaced only via logs.
type Controller struct {
	bus    *bus.Bus
	repo   storage.Repository // nil when persistence is disabled
	snap   *rules.Snapshot
	jobs   *pool.Pool
	params atomic.Pointer[engine.Params]
	log    zerolog.Logger
}

// NewController wires a Controller. repo may be nil when persistence is
// disabled; the expiry suffix and disconnect bookkeeping are skipped then.
func NewController(b *bus.Bus, repo storage.Repository, snap *rules.Snapshot,
	jobs *pool.Pool, params engine.Params, log zerolog.Logger) *Controller {

	c := &Controller{
		bus:  b,
		repo: repo,
		snap: snap,
		jobs: jobs,
		log:  log,
	}
	c.params.Store(&params)
	return c
}

// Params returns the current decision parameters.
func (c *Controller) Params() engine.Params {
	return *c.params.Load()
}

// ApplyParams swaps the decision parameters on a configuration reload.
func (c *Controller) ApplyParams(params engine.Params) {
	c.params.Store(&params)
	c.log.Info().Str("mode", string(params.Mode)).Msg("decision parameters reloaded")
}

// Register subscribes the controller to its inbound bus topics.
func (c *Controller) Register() {
	c.bus.Subscribe(TopicSessionCreated, func(payload any) {
		ev, ok := payload.(SessionCreated)
		if !ok {
			c.log.Warn().Str("topic", TopicSessionCreated).Msg("unexpected payload type")
			return
		}
		c.OnSessionCreated(context.Background(), ev)
	})
	c.bus.Subscribe(TopicRuleCreate, func(payload any) {
		req, ok := payload.(RuleCreateRequest)
		if !ok {
			c.log.Warn().Str("topic", TopicRuleCreate).Msg("unexpected payload type")
			return
		}
		if err := c.CreateRule(req.IssuerID, req.SubjectID, req.Matcher, req.Reason, req.ExpiresAt); err != nil {
			c.log.Error().Err(err).Str("subject", req.SubjectID.String()).Msg("rule create rejected")
		}
	})
	c.bus.Subscribe(TopicRuleDelete, func(payload any) {
		req, ok := payload.(RuleDeleteRequest)
		if !ok {
			c.log.Warn().Str("topic", TopicRuleDelete).Msg("unexpected payload type")
			return
		}
		if err := c.DeleteRule(req.IssuerID, req.SubjectID, req.Reason); err != nil {
			c.log.Error().Err(err).Str("subject", req.SubjectID.String()).Msg("rule delete rejected")
		}
	})
}

// OnSessionCreated runs the decision for one connection attempt. Admitted
// clients are left alone (implicit allow); dropped clients get their session
// row stamped, the deferral terminated with the composed message, and a
// dropped notification published.
func (c *Controller) OnSessionCreated(ctx context.Context, ev SessionCreated) {
	params := c.Params()
	set := c.snap.Current()
	if set == nil {
		// No rebuild has ever succeeded; decide against an empty set
		// rather than blocking the connection.
		set = rules.Build(rules.StaticRules{}, nil, time.Now().UTC())
	}

	decision := engine.Decide(params, set, ev.Client)

	if decision.Admit {
		metrics.DecisionsTotal.WithLabelValues(string(params.Mode), "allowed", "").Inc()
		c.bus.Publish(TopicClientAllowed, ClientSession{Client: ev.Client, Session: ev.Session})
		c.log.Debug().Str("client", ev.Client.Name).Str("session", ev.Session.ID.String()).Msg("client allowed")
		return
	}

	message := decision.Message
	if params.Mode == engine.Blacklist && decision.Reason == engine.ReasonRuleMatch && c.repo != nil {
		if suffix := engine.ExpirySuffix(ctx, c.repo, ev.Client, time.Now().UTC(), c.log); suffix != "" {
			message = message + " " + suffix
		}
	}

	// Best-effort disconnect bookkeeping; a store failure must not block
	// the drop.
	if c.repo != nil {
		if err := c.repo.RecordDisconnect(ctx, ev.Session.ID, message, time.Now().UTC()); err != nil {
			c.log.Warn().Err(err).Str("session", ev.Session.ID.String()).Msg("failed to record disconnect")
		}
	}

	ev.Deferrals.Terminate(message)

	metrics.DecisionsTotal.WithLabelValues(string(params.Mode), "dropped", decision.Reason).Inc()
	c.bus.Publish(TopicClientDropped, ClientSession{Client: ev.Client, Session: ev.Session})
	c.log.Info().Str("client", ev.Client.Name).Str("user", ev.Session.UserID.String()).
		Str("session", ev.Session.ID.String()).Str("reason", decision.Reason).Msg("client dropped")
}

// CreateRule validates and enqueues a rule creation. Malformed input is
// rejected here and never reaches the store.
func (c *Controller) CreateRule(issuer, subject uuid.UUID, m rules.Matcher, reason string, expiry *time.Time) error {
	if c.repo == nil {
		metrics.MutationsTotal.WithLabelValues(pool.ActionCreate, "rejected").Inc()
		return fmt.Errorf("persistence is disabled")
	}
	if subject == uuid.Nil {
		metrics.MutationsTotal.WithLabelValues(pool.ActionCreate, "rejected").Inc()
		return fmt.Errorf("subject user id is required")
	}
	if err := m.Validate(); err != nil {
		metrics.MutationsTotal.WithLabelValues(pool.ActionCreate, "rejected").Inc()
		return err
	}
	if expiry != nil && !expiry.After(time.Now().UTC()) {
		metrics.MutationsTotal.WithLabelValues(pool.ActionCreate, "rejected").Inc()
		return fmt.Errorf("expiry must be in the future")
	}

	metrics.MutationsTotal.WithLabelValues(pool.ActionCreate, "accepted").Inc()
	c.jobs.Enqueue(pool.MutationJob{
		Action:    pool.ActionCreate,
		IssuerID:  issuer,
		SubjectID: subject,
		Matcher:   m,
		Reason:    reason,
		ExpiresAt: expiry,
	})
	return nil
}

// DeleteRule validates and enqueues a soft-delete of all active rules for
// the subject.
func (c *Controller) DeleteRule(issuer, subject uuid.UUID, reason string) error {
	if c.repo == nil {
		metrics.MutationsTotal.WithLabelValues(pool.ActionDelete, "rejected").Inc()
		return fmt.Errorf("persistence is disabled")
	}
	if subject == uuid.Nil {
		metrics.MutationsTotal.WithLabelValues(pool.ActionDelete, "rejected").Inc()
		return fmt.Errorf("subject user id is required")
	}

	metrics.MutationsTotal.WithLabelValues(pool.ActionDelete, "accepted").Inc()
	c.jobs.Enqueue(pool.MutationJob{
		Action:    pool.ActionDelete,
		IssuerID:  issuer,
		SubjectID: subject,
		Reason:    reason,
	})
	return nil
}

// MakeMutationHandler returns the pool handler that executes validated
// mutation jobs against the repository. Each job runs in a single store
// transaction; on success the reloader is kicked so the live set reflects
// the mutation before the next decision.
func MakeMutationHandler(repo storage.Repository, reloader *Reloader, log zerolog.Logger) pool.JobHandler {
	return func(ctx context.Context, job pool.MutationJob) error {
		switch job.Action {
		case pool.ActionCreate:
			rule := &rules.Rule{
				SubjectUserID:  job.SubjectID,
				IssuedByUserID: job.IssuerID,
				License:        job.Matcher.License,
				SteamID:        job.Matcher.SteamID,
				IPAddress:      job.Matcher.IPAddress,
				ExpiresAt:      job.ExpiresAt,
			}
			if job.Reason != "" {
				reason := job.Reason
				rule.Reason = &reason
			}
			if err := repo.Create(ctx, rule); err != nil {
				return fmt.Errorf("create rule: %w", err)
			}
			log.Info().Str("rule", rule.ID.String()).Str("subject", job.SubjectID.String()).
				Str("issuer", job.IssuerID.String()).Msg("rule created")

		case pool.ActionDelete:
			affected, err := repo.SoftDelete(ctx, job.SubjectID)
			if err != nil {
				return fmt.Errorf("delete rules: %w", err)
			}
			if affected == 0 {
				log.Warn().Str("subject", job.SubjectID.String()).Msg("no active rules to delete")
				return nil
			}
			log.Info().Str("subject", job.SubjectID.String()).Int64("rules", affected).
				Str("issuer", job.IssuerID.String()).Msg("rules deleted")

		default:
			log.Error().Str("action", job.Action).Msg("unknown mutation action")
			return nil
		}

		reloader.Kick("mutation")
		return nil
	}
}

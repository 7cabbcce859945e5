package orchestrator

import (
	"errors"
	"fmt"

	"github.com/cuemby/ipsecd/pkg/config"
	"github.com/cuemby/ipsecd/pkg/dispatcher"
	"github.com/cuemby/ipsecd/pkg/events"
	"github.com/cuemby/ipsecd/pkg/publisher"
	"github.com/cuemby/ipsecd/pkg/types"
)

// Apply converts a manifest into configuration tasks and subscriptions.
// Tasks are queued authorities first, then connections, SAs and SPs, each
// in document order. Credentials are loaded before anything is queued.
// It returns the number of tasks queued; a credential that fails to load
// is reported in the error but does not stop the rest.
func (o *Orchestrator) Apply(m *config.Manifest) (int, error) {
	if m == nil {
		return 0, types.ErrNullParameter
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}

	var errs []error
	for i := range m.Credentials {
		cred := &m.Credentials[i]
		if err := o.ike.LoadCredential(cred); err != nil {
			errs = append(errs, types.ExternalCallError(fmt.Sprintf("load %s credential", cred.Type), err))
		}
	}

	var tasks []*dispatcher.Task
	for _, e := range m.Authorities {
		tasks = append(tasks, dispatcher.NewCATask(taskAction(e.Op), e.CA))
	}
	for _, e := range m.Connections {
		tasks = append(tasks, dispatcher.NewIKETask(taskAction(e.Op), e.IKEConnection))
	}
	for _, e := range m.SAs {
		tasks = append(tasks, dispatcher.NewSATask(taskAction(e.Op), e.SA))
	}
	for _, e := range m.SPs {
		tasks = append(tasks, dispatcher.NewSPTask(taskAction(e.Op), e.SP))
	}

	queued := 0
	for _, task := range tasks {
		if err := o.dispatcher.AddTask(task); err != nil {
			errs = append(errs, err)
			continue
		}
		queued++
	}

	for _, e := range m.Stats {
		sub := subscription(e)
		if e.Op == config.OpRemove {
			if o.publisher.RemoveStat(sub) && !o.subscribed(sub) {
				o.forgetStat(sub)
			}
			continue
		}
		o.publisher.AddStat(sub)
	}

	o.logger.Info().
		Int("tasks", queued).
		Int("stats", len(m.Stats)).
		Int("credentials", len(m.Credentials)).
		Msg("Manifest applied")
	o.publishEvent(&events.Event{
		Type:    events.EventManifestApplied,
		Message: fmt.Sprintf("queued %d tasks", queued),
	})

	return queued, errors.Join(errs...)
}

// ApplyYAML parses, applies and persists a raw manifest
func (o *Orchestrator) ApplyYAML(data []byte) (int, error) {
	m, err := config.ParseManifest(data)
	if err != nil {
		return 0, err
	}

	n, applyErr := o.Apply(m)

	if o.store != nil {
		if err := o.store.SaveManifest(data); err != nil {
			o.logger.Error().Err(err).Msg("Failed to persist manifest")
		}
	}
	return n, applyErr
}

// Restore re-applies the manifest persisted by the last ApplyYAML. It
// returns types.ErrNotFound when there is none.
func (o *Orchestrator) Restore() (int, error) {
	if o.store == nil {
		return 0, fmt.Errorf("no store configured: %w", types.ErrNotFound)
	}
	data, err := o.store.GetManifest()
	if err != nil {
		return 0, err
	}
	m, err := config.ParseManifest(data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse stored manifest: %w", err)
	}
	return o.Apply(m)
}

// subscribed reports whether an equal subscription is still registered
func (o *Orchestrator) subscribed(sub publisher.Subscription) bool {
	for _, s := range o.publisher.Subscriptions() {
		if s == sub {
			return true
		}
	}
	return false
}

// forgetStat drops the stored sample of an object no longer sampled
func (o *Orchestrator) forgetStat(sub publisher.Subscription) {
	if o.store == nil {
		return
	}
	if err := o.store.DeleteStat(sub.Kind, sub.String()); err != nil {
		o.logger.Error().Err(err).
			Str("kind", string(sub.Kind)).
			Str("key", sub.String()).
			Msg("Failed to delete stored stat")
	}
}

func taskAction(op string) dispatcher.Action {
	switch op {
	case config.OpModify:
		return dispatcher.ActionModify
	case config.OpRemove:
		return dispatcher.ActionRemove
	default:
		return dispatcher.ActionAdd
	}
}

func subscription(e config.StatEntry) publisher.Subscription {
	switch e.Kind {
	case types.StatSA:
		return publisher.SASubscription(e.SPI)
	case types.StatSP:
		return publisher.SPSubscription(e.SP)
	default:
		return publisher.IKESubscription(e.Name)
	}
}

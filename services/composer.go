package services

import (
	"context"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/domain"
	"krysselista/errors"
	"krysselista/observability"
	"krysselista/repositories"
	"log/slog"
)

// Composer validates and appends new messages.
// Nothing is inserted locally: the message shows up through the next snapshot.
type Composer struct {
	client        contract.ICollectionClient
	log           *slog.Logger
	monitoring    *observability.MonitoringManager
	maxBodyLength int
}

func NewComposer(client contract.ICollectionClient, log *slog.Logger, monitoring *observability.MonitoringManager, maxBodyLength int) *Composer {
	return &Composer{client: client, log: log, monitoring: monitoring, maxBodyLength: maxBodyLength}
}

// Send appends cmd.Body to cmd.Thread and returns the new message id.
// Validation and access errors come back before anything is written; a failed
// append returns a *errors.SendError holding the draft.
func (c *Composer) Send(ctx context.Context, cmd domain.SendCommand, roster domain.Roster) (string, error) {
	if cmd.Thread == nil {
		return "", errors.ErrNoThreadSelected
	}
	body, err := validateBody(cmd.Body, c.maxBodyLength)
	if err != nil {
		return "", err
	}
	if err := domain.CanCompose(cmd.Viewer, cmd.Thread, roster); err != nil {
		c.log.Debug("Message rejected", "viewer", cmd.Viewer.ID, "thread", cmd.Thread.Key().String(), "error", err)
		return "", err
	}

	ref := cmd.Thread
	if direct, ok := ref.(domain.DirectRef); ok {
		// the roster is authoritative for the department of a direct thread
		subject, _ := roster.Subject(direct.SubjectID)
		ref = domain.DirectRef{SubjectID: subject.ID, Dept: subject.Department}
	}

	id, err := c.client.Append(ctx, collection.Messages, repositories.EncodeNewMessage(cmd.Viewer, ref, body))
	if err != nil {
		if !errors.Is(err, errors.ErrPersistence) {
			err = errors.NewPersistenceError("append", string(collection.Messages), "", err)
		}
		c.monitoring.SendFailed()
		c.log.Error("Cannot send message", "viewer", cmd.Viewer.ID, "thread", ref.Key().String(), "error", err)
		return "", &errors.SendError{Draft: cmd.Body, Err: err}
	}
	c.monitoring.MessageSent(string(ref.Key().Type))
	c.log.Debug("Message sent", "id", id, "thread", ref.Key().String())
	return id, nil
}

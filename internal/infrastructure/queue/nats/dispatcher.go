package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// ActionDispatcher publishes forwarded rule actions as JSON to
// <prefix>.<action type>.
type ActionDispatcher struct {
	queue  *Queue
	prefix string
}

func NewActionDispatcher(queue *Queue, subjectPrefix string) *ActionDispatcher {
	return &ActionDispatcher{
		queue:  queue,
		prefix: strings.TrimSuffix(strings.TrimSpace(subjectPrefix), "."),
	}
}

func (d *ActionDispatcher) Dispatch(ctx context.Context, event domain.ActionEvent) error {
	if !event.Type.Forwarded() {
		return fmt.Errorf("action %q is not forwarded", event.Type)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal action event: %w", err)
	}
	return d.queue.publish(ctx, "nats.dispatch", ActionSubject(d.prefix, event.Type), payload)
}

func ActionSubject(prefix string, action domain.ActionType) string {
	if prefix == "" {
		return string(action)
	}
	return prefix + "." + string(action)
}

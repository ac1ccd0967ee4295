package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/coolive/internal/model"
)

const maxParallelSends = 4

type subscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Notifier tells assignees about tasks given to them.
type Notifier struct {
	service *Service
	subs    subscriptionStore
	logger  *slog.Logger
}

func NewNotifier(service *Service, subs subscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{service: service, subs: subs, logger: logger}
}

// NotifyAssigned pushes a notification to every device of every assignee
// except actorID. Expired subscriptions are removed. It returns the number
// of notifications delivered.
func (n *Notifier) NotifyAssigned(ctx context.Context, task model.Task, assigneeIDs []int64, actorID int64) int {
	var targets []model.PushSubscription
	for _, uid := range assigneeIDs {
		if uid == actorID {
			continue
		}
		subs, err := n.subs.ListByUser(ctx, uid)
		if err != nil {
			n.logger.Error("list push subscriptions", "user_id", uid, "error", err)
			continue
		}
		targets = append(targets, subs...)
	}
	if len(targets) == 0 {
		return 0
	}

	payload := Payload{
		Title: "New task",
		Body:  fmt.Sprintf("%s (%d points)", task.Title, task.Points),
		URL:   fmt.Sprintf("/tasks/%d", task.ID),
		Tag:   fmt.Sprintf("task-%d", task.ID),
	}

	sent := make([]bool, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSends)
	for i := range targets {
		sub := targets[i]
		g.Go(func() error {
			err := n.service.Send(gctx, &sub, payload)
			switch {
			case errors.Is(err, ErrExpired):
				if err := n.subs.DeleteByEndpoint(gctx, sub.Endpoint); err != nil {
					n.logger.Error("delete expired subscription", "subscription_id", sub.ID, "error", err)
				}
				n.logger.Info("removed expired subscription", "subscription_id", sub.ID, "user_id", sub.UserID)
			case err != nil:
				n.logger.Warn("push send failed", "subscription_id", sub.ID, "user_id", sub.UserID, "error", err)
			default:
				sent[i] = true
			}
			return nil
		})
	}
	g.Wait()

	delivered := 0
	for _, ok := range sent {
		if ok {
			delivered++
		}
	}
	n.logger.Debug("assignment notifications sent", "task_id", task.ID, "delivered", delivered, "targets", len(targets))
	return delivered
}

package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/web/websocket"
)

// EventStateChanged tells the SPA to refetch /api/appstate
const EventStateChanged = "appstate.changed"

type hubNotifier struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

func (n hubNotifier) Notify(ctx context.Context, accountID uuid.UUID, event string, payload interface{}) {
	if err := n.hub.NotifyJSON(accountID, event, payload); err != nil {
		n.logger.Warn("failed to encode realtime event", zap.String("event", event), zap.Error(err))
	}
}

// stateListener drops cached app state and pushes a refresh to open sessions
type stateListener struct {
	state  *appstate.Service
	hub    *websocket.Hub
	logger *zap.Logger
}

func (l *stateListener) AccountChanged(ctx context.Context, accountID uuid.UUID) {
	if err := l.state.Invalidate(ctx, accountID); err != nil {
		l.logger.Warn("failed to invalidate app state",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
	}
	payload := map[string]string{"account_id": accountID.String()}
	if err := l.hub.NotifyJSON(accountID, EventStateChanged, payload); err != nil {
		l.logger.Warn("failed to notify app state change", zap.Error(err))
	}
}

package services

import (
	"context"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/sirupsen/logrus"
)

// Sync handles a background-sync trigger. For the user-data tag every
// connected client is told to sync; the controller does not sync anything
// itself. It returns the number of clients notified.
func (c *OfflineController) Sync(ctx context.Context, tag string) (int, error) {
	if tag != offline.SyncTagUserData {
		if c.logger != nil {
			c.logger.WithField("tag", tag).Debug("offline controller: ignoring unknown sync tag")
		}
		return 0, nil
	}
	if c.notifier == nil {
		return 0, nil
	}
	n := c.notifier.Broadcast(ctx, offline.Message{Type: offline.MessageSyncRequired})
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"tag": tag, "clients": n}).Info("offline controller: sync requested from clients")
	}
	return n, nil
}

package service

import (
	"context"
	"time"

	"securesend/internal/database"
	"securesend/internal/models"

	log "github.com/sirupsen/logrus"
)

const activityPageSize = 20

// activityRecorder writes the audit trail. A failing sink is logged and
// never fails the surrounding operation.
type activityRecorder struct {
	store ActivityStore
	now   func() time.Time
}

func (r activityRecorder) record(ctx context.Context, accountID int64, action, details string, meta RequestMeta) {
	err := r.store.LogActivity(ctx, database.LogActivityParams{
		AccountID: accountID,
		Action:    action,
		Details:   details,
		IPAddress: meta.IP,
		CreatedAt: r.now(),
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"account_id": accountID,
			"action":     action,
		}).Error("failed to write activity log")
	}
}

type ActivityService struct {
	store ActivityStore
}

func NewActivityService(store ActivityStore) *ActivityService {
	return &ActivityService{store: store}
}

// List returns the newest activity records of the account.
func (s *ActivityService) List(ctx context.Context, accountID int64) ([]models.ActivityRecord, error) {
	records, err := s.store.ListActivity(ctx, accountID, activityPageSize)
	if err != nil {
		return nil, internal(err)
	}
	return records, nil
}

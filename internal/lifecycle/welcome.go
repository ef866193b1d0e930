package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// Accounts created this recently get the first time user experience.
const firstTimeWindow = 10 * time.Second

// Welcome is the first message a new connection receives.
type Welcome struct {
	UserID        int             `json:"userID"`
	Username      string          `json:"username"`
	TotalGames    int             `json:"totalGames"`
	Muted         bool            `json:"muted"`
	FirstTimeUser bool            `json:"firstTimeUser"`
	Settings      json.RawMessage `json:"settings"`
	Friends       []string        `json:"friends"`

	PlayingAtTables       []int `json:"playingAtTables"`
	DisconSpectatingTable *int  `json:"disconSpectatingTable,omitempty"`
	DisconShadowingSeat   *int  `json:"disconShadowingSeat,omitempty"`

	// Not implemented yet; always sent with these values.
	RandomTableName      string `json:"randomTableName"`
	ShuttingDown         bool   `json:"shuttingDown"`
	DatetimeShutdownInit string `json:"datetimeShutdownInit"`
	MaintenanceMode      bool   `json:"maintenanceMode"`
}

func (q *Queue) sendInitial(s user.Session) {
	start := time.Now()
	logger := q.logger.With(zap.Int("user_id", s.UserID), zap.Uint64("session_id", s.SessionID))

	if err := s.Conn.Send("welcome", q.buildWelcome(s)); err != nil {
		logger.Warn("failed to send welcome", zap.Error(err))
		return
	}
	if err := s.Conn.Send("userList", q.registry.Infos()); err != nil {
		logger.Warn("failed to send user list", zap.Error(err))
		return
	}
	if err := s.Conn.Send("tableList", q.tableDirectory().Summaries()); err != nil {
		logger.Warn("failed to send table list", zap.Error(err))
		return
	}
	q.metrics.ObserveWelcome(time.Since(start))
}

// buildWelcome assembles the welcome payload. Persistence failures are
// logged and leave the affected field at its default.
func (q *Queue) buildWelcome(s user.Session) Welcome {
	w := Welcome{
		UserID:          s.UserID,
		Username:        s.Username,
		Muted:           s.Muted,
		Settings:        json.RawMessage("{}"),
		Friends:         []string{},
		PlayingAtTables: []int{},
	}

	if q.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), q.welcomeTimeout)
		defer cancel()

		var (
			totalGames int
			createdAt  time.Time
			settings   json.RawMessage
			friends    []string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			n, err := q.store.GameCount(gctx, s.UserID)
			if err != nil {
				q.degraded(s.UserID, "game count", err)
				return nil
			}
			totalGames = n
			return nil
		})
		g.Go(func() error {
			t, err := q.store.CreatedAt(gctx, s.UserID)
			if err != nil {
				q.degraded(s.UserID, "creation time", err)
				return nil
			}
			createdAt = t
			return nil
		})
		g.Go(func() error {
			raw, err := q.store.Settings(gctx, s.UserID)
			if err != nil {
				q.degraded(s.UserID, "settings", err)
				return nil
			}
			settings = raw
			return nil
		})
		g.Go(func() error {
			list, err := q.store.Friends(gctx, s.UserID)
			if err != nil {
				q.degraded(s.UserID, "friends", err)
				return nil
			}
			friends = list
			return nil
		})
		_ = g.Wait()

		w.TotalGames = totalGames
		if !createdAt.IsZero() {
			w.FirstTimeUser = q.now().Sub(createdAt) < firstTimeWindow
		}
		if len(settings) > 0 && json.Valid(settings) {
			w.Settings = settings
		}
		if friends != nil {
			w.Friends = friends
		}
	}

	tables := q.tableDirectory()
	if ids := tables.TableIDsUserIsPlayingAt(s.UserID); ids != nil {
		w.PlayingAtTables = ids
	}
	if meta, ok := tables.SpectatingMetadata(s.UserID); ok {
		tableID, seat := meta.TableID, meta.ShadowingSeat
		w.DisconSpectatingTable = &tableID
		w.DisconShadowingSeat = &seat
	}
	return w
}

func (q *Queue) degraded(userID int, what string, err error) {
	q.logger.Warn("welcome read failed, using default",
		zap.Int("user_id", userID),
		zap.String("field", what),
		zap.Error(err),
	)
}

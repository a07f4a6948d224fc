package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Peer health states as surfaced on the health endpoint.
const (
	PeerHealthy  = "healthy"
	PeerDegraded = "degraded"
	PeerDown     = "down"
)

// PeerHealth tracks the recent delivery outcomes per peer URL in a Redis
// hash. It is observability only: delivery eligibility is decided by the
// reconciler's store scan, never by this tracker, because every non-sent
// record must stay eligible on every tick.
type PeerHealth struct {
	redisClient   *redis.Client
	logger        *slog.Logger
	downThreshold int
}

// PeerState is the snapshot reported for one peer URL.
type PeerState struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
}

func NewPeerHealth(redisClient *redis.Client, logger *slog.Logger) *PeerHealth {
	return &PeerHealth{
		redisClient:   redisClient,
		logger:        logger,
		downThreshold: 5,
	}
}

func phKey(peerURL string) string {
	return fmt.Sprintf("peer:%s", peerURL)
}

// RecordSuccess resets the failure streak for a peer.
func (ph *PeerHealth) RecordSuccess(ctx context.Context, peerURL string) {
	err := ph.redisClient.HSet(ctx, phKey(peerURL),
		"failures", 0,
		"last_error", "",
		"last_success_at", time.Now().Unix(),
	).Err()
	if err != nil {
		ph.logger.Debug("peer health update failed", "error", err, "peer", peerURL)
	}
}

// RecordFailure increments the failure streak and logs when a peer
// crosses the down threshold.
func (ph *PeerHealth) RecordFailure(ctx context.Context, peerURL, errMsg string) {
	key := phKey(peerURL)

	failures, err := ph.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		ph.logger.Debug("peer health update failed", "error", err, "peer", peerURL)
		return
	}
	ph.redisClient.HSet(ctx, key,
		"last_error", errMsg,
		"last_failure_at", time.Now().Unix(),
	)

	if failures == int64(ph.downThreshold) {
		ph.logger.Warn("peer considered down",
			"peer", peerURL,
			"consecutive_failures", failures,
		)
	}
}

// State returns the current snapshot for a peer URL.
func (ph *PeerHealth) State(ctx context.Context, peerURL string) PeerState {
	data, err := ph.redisClient.HGetAll(ctx, phKey(peerURL)).Result()
	if err != nil || len(data) == 0 {
		return PeerState{State: PeerHealthy}
	}

	failures, _ := strconv.Atoi(data["failures"])

	state := PeerHealthy
	switch {
	case failures >= ph.downThreshold:
		state = PeerDown
	case failures > 0:
		state = PeerDegraded
	}

	snapshot := PeerState{
		State:               state,
		ConsecutiveFailures: failures,
		LastError:           data["last_error"],
	}
	if ts := unixField(data, "last_success_at"); !ts.IsZero() {
		snapshot.LastSuccessAt = ts.Format(time.RFC3339)
	}
	if ts := unixField(data, "last_failure_at"); !ts.IsZero() {
		snapshot.LastFailureAt = ts.Format(time.RFC3339)
	}
	return snapshot
}

func unixField(data map[string]string, field string) time.Time {
	sec, _ := strconv.ParseInt(data[field], 10, 64)
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

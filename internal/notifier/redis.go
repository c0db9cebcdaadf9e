package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/artmarket/artledger/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const ordersChannel = "events:orders"

func userChannel(userID int64) string {
	return fmt.Sprintf("events:user:%d", userID)
}

type balanceChangedEvent struct {
	Event      string `json:"event"`
	UserID     int64  `json:"user_id"`
	NewBalance string `json:"new_balance"`
}

type withdrawalResolvedEvent struct {
	Event     string `json:"event"`
	UserID    int64  `json:"user_id"`
	RequestID int64  `json:"request_id"`
	Status    string `json:"status"`
}

type orderSettledEvent struct {
	Event        string           `json:"event"`
	OrderID      int64            `json:"order_id"`
	BuyerID      int64            `json:"buyer_id"`
	ArtistShares map[int64]string `json:"artist_shares"`
}

type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(addr string) *RedisNotifier {
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (n *RedisNotifier) publish(ctx context.Context, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("failed to marshal event", zap.Error(err))
		return
	}
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		logger.Log.Warn("failed to publish event",
			zap.String("channel", channel), zap.Error(err))
	}
}

func (n *RedisNotifier) BalanceChanged(ctx context.Context, userID int64, newBalance decimal.Decimal) {
	n.publish(ctx, userChannel(userID), balanceChangedEvent{
		Event:      "balance_changed",
		UserID:     userID,
		NewBalance: newBalance.String(),
	})
}

func (n *RedisNotifier) WithdrawalResolved(ctx context.Context, userID int64, requestID int64, status string) {
	n.publish(ctx, userChannel(userID), withdrawalResolvedEvent{
		Event:     "withdrawal_resolved",
		UserID:    userID,
		RequestID: requestID,
		Status:    status,
	})
}

func (n *RedisNotifier) OrderSettled(ctx context.Context, orderID int64, buyerID int64, artistShares map[int64]decimal.Decimal) {
	shares := make(map[int64]string, len(artistShares))
	for artistID, share := range artistShares {
		shares[artistID] = share.String()
	}
	n.publish(ctx, ordersChannel, orderSettledEvent{
		Event:        "order_settled",
		OrderID:      orderID,
		BuyerID:      buyerID,
		ArtistShares: shares,
	})
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/repository"
	"github.com/example/pps/internal/utils"
)

// NotificationTopic names the merchant notification stream in logs.
const NotificationTopic = "merchant-notifications"

var (
	ErrQueueFull      = errors.New("notification queue full")
	ErrNotifierClosed = errors.New("notifier closed")
)

// Notification tells a merchant that a transaction reached a final status.
// Notifications with the same Key are delivered in publish order.
type Notification struct {
	Key         string
	Transaction models.Transaction
}

// Publisher hands notifications to asynchronous delivery.
type Publisher interface {
	Publish(n Notification) error
}

type NotifierConfig struct {
	Secret    string
	Timeout   time.Duration
	Workers   int
	QueueSize int
	// RPS caps outbound deliveries per second across all workers; 0 is
	// unlimited.
	RPS int
}

// Notifier delivers notifications to merchant webhook URLs. Keys are
// hashed onto a fixed set of worker queues, so one merchant's notifications
// are always handled by the same worker.
type Notifier struct {
	merchants *repository.MerchantRepo
	cfg       NotifierConfig
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	shards  []chan Notification
	wg      sync.WaitGroup
}

func NewNotifier(merchants *repository.MerchantRepo, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	shards := make([]chan Notification, cfg.Workers)
	perShard := cfg.QueueSize / cfg.Workers
	if perShard < 1 {
		perShard = 1
	}
	for i := range shards {
		shards[i] = make(chan Notification, perShard)
	}

	return &Notifier{
		merchants: merchants,
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, max(cfg.RPS, 1)),
		logger:    logger.With(slog.String("topic", NotificationTopic)),
		shards:    shards,
	}
}

// Start launches one worker per shard.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return
	}
	n.started = true

	for i, ch := range n.shards {
		n.wg.Add(1)
		go n.work(i, ch)
	}
}

func (n *Notifier) Publish(note Notification) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrNotifierClosed
	}

	select {
	case n.shards[n.shardFor(note.Key)] <- note:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	for _, ch := range n.shards {
		close(ch)
	}
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *Notifier) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(n.shards)))
}

func (n *Notifier) work(id int, ch <-chan Notification) {
	defer n.wg.Done()
	for note := range ch {
		if err := n.limiter.Wait(context.Background()); err != nil {
			n.logger.Warn("notification throttle failed", slog.Any("err", err))
		}
		if err := n.deliver(context.Background(), note); err != nil {
			n.logger.Warn("merchant notification failed",
				slog.Int("worker", id),
				slog.String("merchant_id", note.Key),
				slog.String("transaction_id", note.Transaction.ID.String()),
				slog.Any("err", err),
			)
		}
	}
}

// deliver POSTs the transaction to the merchant's webhook URL with an
// X-PPS-Signature token. Failed deliveries are not retried.
func (n *Notifier) deliver(ctx context.Context, note Notification) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	txn := note.Transaction
	merchant, err := n.merchants.FindByID(ctx, txn.MerchantID)
	if err != nil {
		return fmt.Errorf("load merchant: %w", err)
	}
	if merchant.WebhookURL == "" {
		n.logger.Debug("merchant has no webhook url", slog.String("merchant_id", merchant.ID.String()))
		return nil
	}

	body, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	token, err := utils.SignNotification(n.cfg.Secret, merchant.ID, txn.ID, body, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("sign notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, merchant.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PPS-Signature", token)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("merchant webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info("merchant notified",
		slog.String("merchant_id", merchant.ID.String()),
		slog.String("transaction_id", txn.ID.String()),
		slog.String("status", string(txn.Status)),
	)
	return nil
}

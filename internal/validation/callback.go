package validation

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

type callbackTask struct {
	url   string
	token string
}

// CallbackNotifier delivers result tokens to wallet-chosen callback URLs
// through a small bounded worker pool. Delivery is fire-and-forget: a full
// queue or a failed POST is logged and dropped, never retried.
type CallbackNotifier struct {
	client *http.Client
	logger *slog.Logger
	tasks  chan callbackTask
	wg     sync.WaitGroup
}

// NewCallbackNotifier starts workers goroutines draining a bounded queue.
// timeout bounds each delivery attempt.
func NewCallbackNotifier(workers, queueSize int, timeout time.Duration, logger *slog.Logger) *CallbackNotifier {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}

	n := &CallbackNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
		tasks:  make(chan callbackTask, queueSize),
	}

	n.wg.Add(workers)
	for range workers {
		go n.worker()
	}
	return n
}

// Notify enqueues one delivery. It never blocks the submission path: when
// the queue is full the callback is dropped with a warning.
func (n *CallbackNotifier) Notify(url, resultToken string) {
	select {
	case n.tasks <- callbackTask{url: url, token: resultToken}:
	default:
		n.logger.Warn("callback queue full, dropping delivery", slog.String("url", url))
	}
}

// Shutdown stops accepting work and waits up to grace for in-flight
// deliveries to finish; remaining work is abandoned.
func (n *CallbackNotifier) Shutdown(grace time.Duration) {
	close(n.tasks)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		n.logger.Warn("callback drain timed out, abandoning remaining deliveries")
	}
}

func (n *CallbackNotifier) worker() {
	defer n.wg.Done()
	for task := range n.tasks {
		n.deliver(task)
	}
}

func (n *CallbackNotifier) deliver(task callbackTask) {
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodPost, task.url, strings.NewReader(task.token))
	if err != nil {
		n.logger.Warn("callback request build failed",
			slog.String("url", task.url), slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/jwt")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("callback delivery failed",
			slog.String("url", task.url), slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		n.logger.Warn("callback delivery rejected",
			slog.String("url", task.url), slog.Int("status", resp.StatusCode))
	}
}

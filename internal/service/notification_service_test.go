package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"patient-registration/internal/domain/entity"
	"patient-registration/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sentMail
	hits int
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func (f *fakeSender) snapshot() ([]sentMail, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...), f.hits
}

func newTestQueue(t *testing.T, sender MailSender, maxAttempts int) (*NotificationQueue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	q := NewNotificationQueue(client, log, sender, metrics.New(), NotificationQueueConfig{
		QueueKey:    "notifications:test",
		MaxAttempts: maxAttempts,
		PollTimeout: 100 * time.Millisecond,
	})
	return q, mr
}

func runWorker(t *testing.T, q *NotificationQueue) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("notification worker did not stop")
		}
	})
	return cancel
}

func registrationJob() entity.NotificationJob {
	return entity.NotificationJob{
		Type:      entity.NotificationPatientRegistered,
		PatientID: 1,
		Email:     "john@gmail.com",
		FullName:  "John Doe",
	}
}

func TestRenderRegistrationEmail(t *testing.T) {
	subject, body, err := RenderRegistrationEmail(registrationJob())
	require.NoError(t, err)

	assert.Equal(t, "Welcome! Your Registration is Complete", subject)
	assert.Contains(t, body, "Hello John Doe!")
	assert.Contains(t, body, "Your patient registration has been successfully completed.")
}

func TestNotificationQueue_EnqueuePushesJSON(t *testing.T) {
	q, mr := newTestQueue(t, &fakeSender{}, 3)

	require.NoError(t, q.Enqueue(context.Background(), registrationJob()))

	items, err := mr.List("notifications:test")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var job entity.NotificationJob
	require.NoError(t, json.Unmarshal([]byte(items[0]), &job))
	assert.Equal(t, "John Doe", job.FullName)
	assert.Equal(t, 0, job.Attempts)
}

func TestNotificationQueue_EnqueueFailsWhenRedisIsDown(t *testing.T) {
	q, mr := newTestQueue(t, &fakeSender{}, 3)
	mr.Close()

	assert.Error(t, q.Enqueue(context.Background(), registrationJob()))
}

func TestNotificationQueue_WorkerDeliversJob(t *testing.T) {
	sender := &fakeSender{}
	q, mr := newTestQueue(t, sender, 3)
	runWorker(t, q)

	require.NoError(t, q.Enqueue(context.Background(), registrationJob()))

	assert.Eventually(t, func() bool {
		sent, _ := sender.snapshot()
		return len(sent) == 1
	}, 2*time.Second, 20*time.Millisecond)

	sent, _ := sender.snapshot()
	assert.Equal(t, "john@gmail.com", sent[0].to)
	assert.Contains(t, sent[0].body, "Hello John Doe!")

	assert.Eventually(t, func() bool {
		return !mr.Exists(q.ProcessingKey())
	}, 2*time.Second, 20*time.Millisecond, "delivered job should be acknowledged")
}

func TestNotificationQueue_WorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp unavailable")}
	q, mr := newTestQueue(t, sender, 2)
	runWorker(t, q)

	require.NoError(t, q.Enqueue(context.Background(), registrationJob()))

	assert.Eventually(t, func() bool {
		items, _ := mr.List(q.DeadLetterKey())
		return len(items) == 1
	}, 2*time.Second, 20*time.Millisecond)

	_, hits := sender.snapshot()
	assert.Equal(t, 2, hits)

	items, _ := mr.List(q.DeadLetterKey())
	var job entity.NotificationJob
	require.NoError(t, json.Unmarshal([]byte(items[0]), &job))
	assert.Equal(t, 2, job.Attempts)
}

func TestNotificationQueue_WorkerDeadLettersMalformedPayload(t *testing.T) {
	q, mr := newTestQueue(t, &fakeSender{}, 3)
	runWorker(t, q)

	_, err := mr.Lpush("notifications:test", "{not json")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		items, _ := mr.List(q.DeadLetterKey())
		return len(items) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

// shutdownSender simulates the worker being stopped while a send is in
// flight: it cancels the worker context, then fails with err or ctx.Err().
type shutdownSender struct {
	cancel context.CancelFunc
	err    error
}

func (s *shutdownSender) Send(ctx context.Context, _, _, _ string) error {
	s.cancel()
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

// takeJob puts a job on the processing list the way Run does before
// handing it to process.
func takeJob(t *testing.T, q *NotificationQueue, mr *miniredis.Miniredis, job entity.NotificationJob) string {
	t.Helper()
	payload, err := encodeJob(job)
	require.NoError(t, err)
	_, err = mr.Lpush(q.ProcessingKey(), payload)
	require.NoError(t, err)
	return payload
}

func queuedJobs(t *testing.T, mr *miniredis.Miniredis, key string) []entity.NotificationJob {
	t.Helper()
	if !mr.Exists(key) {
		return nil
	}
	items, err := mr.List(key)
	require.NoError(t, err)

	jobs := make([]entity.NotificationJob, 0, len(items))
	for _, item := range items {
		var job entity.NotificationJob
		require.NoError(t, json.Unmarshal([]byte(item), &job))
		jobs = append(jobs, job)
	}
	return jobs
}

func TestNotificationQueue_ShutdownMidSendRequeuesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, mr := newTestQueue(t, &shutdownSender{cancel: cancel}, 3)
	payload := takeJob(t, q, mr, registrationJob())

	q.process(ctx, payload)

	queued := queuedJobs(t, mr, "notifications:test")
	require.Len(t, queued, 1)
	assert.Equal(t, "john@gmail.com", queued[0].Email)
	assert.Equal(t, 0, queued[0].Attempts, "an interrupted send is not a failed attempt")
	assert.Empty(t, queuedJobs(t, mr, q.DeadLetterKey()))
	assert.False(t, mr.Exists(q.ProcessingKey()))
}

func TestNotificationQueue_FailureDuringShutdownIsStillRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, mr := newTestQueue(t, &shutdownSender{cancel: cancel, err: errors.New("smtp unavailable")}, 3)
	payload := takeJob(t, q, mr, registrationJob())

	q.process(ctx, payload)

	queued := queuedJobs(t, mr, "notifications:test")
	require.Len(t, queued, 1)
	assert.Equal(t, 1, queued[0].Attempts)
	assert.False(t, mr.Exists(q.ProcessingKey()))
}

func TestNotificationQueue_DeadLetterDuringShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, mr := newTestQueue(t, &shutdownSender{cancel: cancel, err: errors.New("smtp unavailable")}, 1)
	payload := takeJob(t, q, mr, registrationJob())

	q.process(ctx, payload)

	assert.Len(t, queuedJobs(t, mr, q.DeadLetterKey()), 1)
	assert.Empty(t, queuedJobs(t, mr, "notifications:test"))
	assert.False(t, mr.Exists(q.ProcessingKey()))
}

func TestNotificationQueue_RunRecoversInFlightJobs(t *testing.T) {
	sender := &fakeSender{}
	q, mr := newTestQueue(t, sender, 3)

	// Left behind by a worker that crashed mid-send
	takeJob(t, q, mr, registrationJob())

	runWorker(t, q)

	assert.Eventually(t, func() bool {
		sent, _ := sender.snapshot()
		return len(sent) == 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return !mr.Exists(q.ProcessingKey())
	}, 2*time.Second, 20*time.Millisecond)
}

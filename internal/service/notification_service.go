package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"
	"time"

	"patient-registration/internal/domain/entity"
	"patient-registration/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// Contracts
// =============================================================================

// NotificationDispatcher accepts notification jobs for asynchronous delivery.
type NotificationDispatcher interface {
	Enqueue(ctx context.Context, job entity.NotificationJob) error
}

// MailSender delivers a single email.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// =============================================================================
// Templates
// =============================================================================

const registrationSubject = "Welcome! Your Registration is Complete"

var registrationBody = template.Must(template.New("patient_registered").Parse(`Hello {{.FullName}}!

Thank you for registering with us.
Your patient registration has been successfully completed.
We will contact you if we need any additional information.
Thank you for choosing our services!
`))

// RenderRegistrationEmail builds the confirmation email for a new patient.
func RenderRegistrationEmail(job entity.NotificationJob) (string, string, error) {
	var body bytes.Buffer
	if err := registrationBody.Execute(&body, job); err != nil {
		return "", "", fmt.Errorf("render registration email: %w", err)
	}
	return registrationSubject, body.String(), nil
}

// =============================================================================
// Redis queue
// =============================================================================

const (
	deadLetterSuffix = ":failed"
	processingSuffix = ":processing"

	// Pause after a Redis failure before polling again
	retryBackoff = time.Second
)

type NotificationQueueConfig struct {
	QueueKey    string
	MaxAttempts int
	PollTimeout time.Duration
}

// NotificationQueue is a Redis list backed queue. Producers LPUSH jobs and the
// worker loop in Run takes them with BLMOVE, so jobs are delivered oldest first.
//
// Delivery is at-least-once. A taken job sits on "<QueueKey>:processing" until
// its outcome is recorded, and Run moves anything left there back onto the
// queue when it starts. A failed send is pushed back with an incremented
// attempt count until MaxAttempts, after which the job is parked on the
// dead-letter list "<QueueKey>:failed". Run assumes it is the only worker on
// QueueKey.
type NotificationQueue struct {
	redisClient *redis.Client
	log         *logrus.Logger
	sender      MailSender
	metrics     *metrics.Metrics
	cfg         NotificationQueueConfig
}

func NewNotificationQueue(redisClient *redis.Client, log *logrus.Logger, sender MailSender, m *metrics.Metrics, cfg NotificationQueueConfig) *NotificationQueue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &NotificationQueue{
		redisClient: redisClient,
		log:         log,
		sender:      sender,
		metrics:     m,
		cfg:         cfg,
	}
}

func (q *NotificationQueue) DeadLetterKey() string {
	return q.cfg.QueueKey + deadLetterSuffix
}

func (q *NotificationQueue) ProcessingKey() string {
	return q.cfg.QueueKey + processingSuffix
}

func (q *NotificationQueue) Enqueue(ctx context.Context, job entity.NotificationJob) error {
	payload, err := encodeJob(job)
	if err == nil {
		err = q.redisClient.LPush(ctx, q.cfg.QueueKey, payload).Err()
	}
	if err != nil {
		q.metrics.Notifications.WithLabelValues(metrics.NotificationEnqueueErr).Inc()
		return fmt.Errorf("push notification job to %s: %w", q.cfg.QueueKey, err)
	}
	q.metrics.Notifications.WithLabelValues(metrics.NotificationEnqueued).Inc()
	return nil
}

// Run consumes jobs until ctx is cancelled. A job taken off the queue is
// always settled, even when ctx is cancelled while it is in flight.
func (q *NotificationQueue) Run(ctx context.Context) error {
	q.log.Infof("Notification worker listening on %s", q.cfg.QueueKey)

	if err := q.recoverInFlight(ctx); err != nil {
		q.log.Warnf("Failed to requeue in-flight notification jobs: %+v", err)
	}

	for {
		payload, err := q.redisClient.BLMove(ctx, q.cfg.QueueKey, q.ProcessingKey(), "RIGHT", "LEFT", q.cfg.PollTimeout).Result()
		if err == nil {
			q.process(ctx, payload)
			continue
		}
		if ctx.Err() != nil {
			q.log.Info("Notification worker stopped")
			return nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}

		q.log.Warnf("Failed to take notification job: %+v", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryBackoff):
		}
	}
}

// recoverInFlight moves jobs left on the processing list by a stopped worker
// back onto the queue, oldest first in line.
func (q *NotificationQueue) recoverInFlight(ctx context.Context) error {
	recovered := 0
	for {
		err := q.redisClient.LMove(ctx, q.ProcessingKey(), q.cfg.QueueKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return err
		}
		recovered++
	}
	if recovered > 0 {
		q.log.Infof("Requeued %d in-flight notification jobs", recovered)
	}
	return nil
}

func (q *NotificationQueue) process(ctx context.Context, payload string) {
	var job entity.NotificationJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		q.log.Warnf("Discarding malformed notification job: %+v", err)
		if settleErr := q.settle(ctx, payload, q.DeadLetterKey(), payload); settleErr != nil {
			q.log.Errorf("Failed to dead-letter malformed job: %+v", settleErr)
		}
		q.metrics.Notifications.WithLabelValues(metrics.NotificationDeadLetter).Inc()
		return
	}

	err := q.deliver(ctx, job)
	if err == nil {
		if settleErr := q.settle(ctx, payload, "", ""); settleErr != nil {
			q.log.Errorf("Failed to acknowledge notification job: %+v", settleErr)
		}
		q.metrics.Notifications.WithLabelValues(metrics.NotificationSent).Inc()
		q.log.WithFields(logrus.Fields{"patient_id": job.PatientID, "attempt": job.Attempts + 1}).Info("Registration email sent")
		return
	}

	entry := q.log.WithFields(logrus.Fields{"patient_id": job.PatientID, "attempt": job.Attempts + 1})

	// Interrupted by shutdown: put it back as it was
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		entry.Info("Registration email interrupted by shutdown, requeueing")
		if settleErr := q.settle(ctx, payload, q.cfg.QueueKey, payload); settleErr != nil {
			entry.Errorf("Failed to requeue notification job: %+v", settleErr)
		}
		return
	}

	job.Attempts++
	next, encodeErr := encodeJob(job)
	if encodeErr != nil {
		entry.Errorf("Failed to encode notification job: %+v", encodeErr)
		next = payload
	}

	if job.Attempts >= q.cfg.MaxAttempts {
		entry.Errorf("Giving up on registration email: %+v", err)
		if settleErr := q.settle(ctx, payload, q.DeadLetterKey(), next); settleErr != nil {
			entry.Errorf("Failed to dead-letter notification job: %+v", settleErr)
		}
		q.metrics.Notifications.WithLabelValues(metrics.NotificationDeadLetter).Inc()
		return
	}

	entry.Warnf("Failed to send registration email, retrying: %+v", err)
	if settleErr := q.settle(ctx, payload, q.cfg.QueueKey, next); settleErr != nil {
		entry.Errorf("Failed to requeue notification job: %+v", settleErr)
	}
	q.metrics.Notifications.WithLabelValues(metrics.NotificationRetried).Inc()
}

func (q *NotificationQueue) deliver(ctx context.Context, job entity.NotificationJob) error {
	switch job.Type {
	case entity.NotificationPatientRegistered, "":
	default:
		return fmt.Errorf("unknown notification type %q", job.Type)
	}

	subject, body, err := RenderRegistrationEmail(job)
	if err != nil {
		return err
	}
	return q.sender.Send(ctx, job.Email, subject, body)
}

// settle removes payload from the processing list and, when key is set,
// pushes next onto key in the same transaction. It ignores cancellation of
// ctx so an outcome is recorded during shutdown.
func (q *NotificationQueue) settle(ctx context.Context, payload, key, next string) error {
	ctx = context.WithoutCancel(ctx)
	_, err := q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if key != "" {
			pipe.LPush(ctx, key, next)
		}
		pipe.LRem(ctx, q.ProcessingKey(), 1, payload)
		return nil
	})
	return err
}

func encodeJob(job entity.NotificationJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode notification job: %w", err)
	}
	return string(payload), nil
}

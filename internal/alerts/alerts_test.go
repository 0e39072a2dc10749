package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/dutydinar/internal/config"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

type captureMailer struct {
	sent []EmailEnvelope
	err  error
}

func (m *captureMailer) Send(_ context.Context, env EmailEnvelope) error {
	m.sent = append(m.sent, env)
	return m.err
}

func withEnqueuer(t *testing.T, e Enqueuer) {
	t.Helper()
	SetEnqueuer(e)
	t.Cleanup(func() { SetEnqueuer(nil) })
}

func TestEnqueueWithoutClient(t *testing.T) {
	SetEnqueuer(nil)
	err := EnqueueWelcomeEmail(1, "a@b.co", "Ann", "buyer")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestEnqueueOrderConfirmation(t *testing.T) {
	fake := &fakeEnqueuer{}
	withEnqueuer(t, fake)

	err := EnqueueOrderConfirmation(12, 3, "buyer@example.com", decimal.RequireFromString("40.5"), 2)
	require.NoError(t, err)
	require.Len(t, fake.tasks, 1)
	assert.Equal(t, TaskOrderConfirmation, fake.tasks[0].Type())

	var p OrderConfirmationPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &p))
	assert.Equal(t, int64(12), p.OrderID)
	assert.Equal(t, "buyer@example.com", p.Envelope.To)
	assert.Contains(t, p.Envelope.Body, "40.50")
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("40.5")))
}

func TestEnqueueBookingConfirmationFillsEnvelope(t *testing.T) {
	fake := &fakeEnqueuer{}
	withEnqueuer(t, fake)

	err := EnqueueBookingConfirmation(BookingConfirmationPayload{
		BookingID:       5,
		OrderID:         9,
		EventName:       "Trade Expo",
		Email:           "b@example.com",
		Quantity:        2,
		Amount:          decimal.NewFromInt(30),
		GoogleWalletURL: "https://wallet.example/google/x",
		AppleWalletURL:  "https://wallet.example/apple/x",
	})
	require.NoError(t, err)

	var p BookingConfirmationPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &p))
	assert.Equal(t, "Your tickets for Trade Expo", p.Envelope.Subject)
	assert.Contains(t, p.Envelope.Body, "https://wallet.example/google/x")
	assert.Contains(t, p.Envelope.Body, "https://wallet.example/apple/x")
	assert.False(t, p.SentAt.IsZero())
}

func TestEnqueueErrorIsReturned(t *testing.T) {
	withEnqueuer(t, &fakeEnqueuer{err: errors.New("redis down")})
	err := EnqueuePasswordReset("x@example.com", "X", "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestPasswordResetUsesConfiguredTTL(t *testing.T) {
	fake := &fakeEnqueuer{}
	withEnqueuer(t, fake)
	configure(&config.Config{PasswordResetTTL: 30 * time.Minute})
	t.Cleanup(func() { resetTTL = 15 * time.Minute })

	require.NoError(t, EnqueuePasswordReset("x@example.com", "X", "654321"))
	var p PasswordResetPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &p))
	assert.Contains(t, p.Envelope.Body, "654321")
	assert.Contains(t, p.Envelope.Body, "30 minutes")
}

func newMessageBody(t *testing.T, preview string) string {
	t.Helper()
	fake := &fakeEnqueuer{}
	withEnqueuer(t, fake)

	require.NoError(t, EnqueueNewMessage(1, 2, "Sam", "r@example.com", preview))
	var p MessageNewPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &p))
	return p.Envelope.Body
}

func TestNewMessageTruncatesPreview(t *testing.T) {
	body := newMessageBody(t, strings.Repeat("a", 300))
	assert.Contains(t, body, strings.Repeat("a", 139)+"…")
	assert.NotContains(t, body, strings.Repeat("a", 140))
	assert.True(t, utf8.ValidString(body))
}

func TestNewMessageKeepsShortenedPreviewIntact(t *testing.T) {
	preview := strings.Repeat("a", 139) + "…"
	body := newMessageBody(t, preview)
	assert.Contains(t, body, preview+"\n")
	assert.True(t, utf8.ValidString(body))
}

func TestNewMessageCutsOnRuneBoundaries(t *testing.T) {
	body := newMessageBody(t, strings.Repeat("ü", 200))
	assert.True(t, utf8.ValidString(body))
	assert.Contains(t, body, strings.Repeat("ü", 139)+"…")
	assert.NotContains(t, body, strings.Repeat("ü", 140))
}

func TestMuxDeliversThroughMailer(t *testing.T) {
	m := &captureMailer{}
	mux := NewMux(m)

	payload, err := json.Marshal(OrderStatusChangedPayload{
		OrderID:  4,
		Status:   "shipped",
		Envelope: EmailEnvelope{To: "b@example.com", Subject: "Order #4 is now shipped", Body: "x"},
	})
	require.NoError(t, err)

	err = mux.ProcessTask(context.Background(), asynq.NewTask(TaskOrderStatusChanged, payload))
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "b@example.com", m.sent[0].To)
}

func TestMuxSkipsRetryOnBadPayload(t *testing.T) {
	mux := NewMux(&captureMailer{})
	err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskWelcomeEmail, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMuxPropagatesMailerError(t *testing.T) {
	mux := NewMux(&captureMailer{err: errors.New("smtp 550")})
	payload, _ := json.Marshal(PasswordResetPayload{Envelope: EmailEnvelope{To: "x@example.com"}})
	err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskPasswordReset, payload))
	assert.EqualError(t, err, "smtp 550")
}

func TestNewMailerSelection(t *testing.T) {
	_, isLog := NewMailer(config.SMTPConfig{Host: "smtp.example.com"}).(LogMailer)
	assert.True(t, isLog)

	full := config.SMTPConfig{Host: "smtp.example.com", Port: "587", Username: "u", Password: "p", From: "no-reply@example.com"}
	_, isSMTP := NewMailer(full).(*SMTPMailer)
	assert.True(t, isSMTP)
}

func TestBuildMessageDetectsHTML(t *testing.T) {
	plain := string(buildMessage("from@example.com", EmailEnvelope{To: "to@example.com", Subject: "Hi", Body: "hello"}))
	assert.Contains(t, plain, "Content-Type: text/plain")
	assert.Contains(t, plain, "To: to@example.com\r\n")

	html := string(buildMessage("from@example.com", EmailEnvelope{To: "to@example.com", Subject: "Hi", Body: "<html><body>x</body></html>"}))
	assert.Contains(t, html, "Content-Type: text/html")
}

func TestBuildMessageKeepsUserTextInsideHeaders(t *testing.T) {
	fake := &fakeEnqueuer{}
	withEnqueuer(t, fake)
	require.NoError(t, EnqueueWelcomeEmail(1, "eve@example.com", "Eve\r\nBcc: victim@example.com", "buyer"))

	var p WelcomeEmailPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &p))
	msg := string(buildMessage("from@example.com", p.Envelope))

	head, _, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)
	for _, line := range strings.Split(head, "\r\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), line)
	}
	assert.NotContains(t, head, "\nBcc:")
	assert.Contains(t, head, "Subject: Welcome to DutyDinar, Eve Bcc: victim@example.com!\r\n")
}

func TestBuildMessageEncodesNonASCIISubject(t *testing.T) {
	msg := string(buildMessage("from@example.com", EmailEnvelope{To: "to@example.com", Subject: "Your tickets for Café Expo", Body: "x"}))
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.NotContains(t, msg, "Café")
}

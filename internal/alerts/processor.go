package alerts

import (
	"github.com/hibiken/asynq"
)

// NewServer builds the asynq worker server for the email queues.
func NewServer(redisAddr string, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueEmails: 10,
			QueueAlerts: 5,
		},
	})
}

// NewMux routes every task type to its handler.
func NewMux(m Mailer) *asynq.ServeMux {
	h := &taskHandlers{mailer: m}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskWelcomeEmail, h.welcomeEmail)
	mux.HandleFunc(TaskOrderConfirmation, h.orderConfirmation)
	mux.HandleFunc(TaskBookingConfirmation, h.bookingConfirmation)
	mux.HandleFunc(TaskOrderStatusChanged, h.orderStatusChanged)
	mux.HandleFunc(TaskPasswordReset, h.passwordReset)
	mux.HandleFunc(TaskMessageNew, h.messageNew)
	return mux
}

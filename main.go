package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"

	"github.com/sede-open/Scope3EApi-sub000/config"
	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/integrations/hubspot"
	"github.com/sede-open/Scope3EApi-sub000/integrations/mailer"
	"github.com/sede-open/Scope3EApi-sub000/queue"
	"github.com/sede-open/Scope3EApi-sub000/routes"
	"github.com/sede-open/Scope3EApi-sub000/services/allocation"
	"github.com/sede-open/Scope3EApi-sub000/services/dispatch"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found")
	}

	cfg := config.Load()

	database.ConnectDB()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := newQueue(ctx, cfg)

	dispatcher := dispatch.NewDispatcher(database.DB, q, dispatch.Capabilities{
		CRMEnabled: cfg.CRMEnabled,
	})
	allocationSvc := allocation.NewService(database.DB, dispatcher)

	worker := newWorker(cfg, q)
	go worker.Run(ctx)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "scope3-api", "status": "ok", "env": cfg.Env})
	})

	routes.SetupAuthRoutes(app, cfg)
	routes.SetupAllocationRoutes(app, allocationSvc, cfg.JWTSecret)
	routes.SetupEmissionRoutes(app, cfg.JWTSecret)
	routes.SetupRelationshipRoutes(app, dispatcher, cfg.JWTSecret)

	go func() {
		log.Printf("scope3 API listening on %s", cfg.HTTPAddr())
		if err := app.Listen(cfg.HTTPAddr()); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	cancel()
	if err := app.Shutdown(); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}

// newQueue selects the queue driver. Redis falls back to the outbox when
// unreachable so a missing broker never blocks the API.
func newQueue(ctx context.Context, cfg config.Config) queue.Queue {
	switch cfg.QueueDriver {
	case "redis":
		q, err := queue.Open(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("[WARNING] redis unavailable, falling back to outbox queue: %v", err)
			return queue.NewOutboxQueue(database.DB)
		}
		return q
	case "memory":
		return queue.NewMemoryQueue()
	default:
		return queue.NewOutboxQueue(database.DB)
	}
}

// newWorker wires the notification and CRM handlers.
func newWorker(cfg config.Config, q queue.Queue) *queue.Worker {
	mail := mailer.NewClient(cfg.MailerAPIKey, cfg.MailerBaseURL, cfg.MailFrom)
	crm := hubspot.NewClient(cfg.HubSpotToken, cfg.HubSpotBaseURL)

	worker := queue.NewWorker(q, cfg.WorkerInterval)

	emailKinds := map[string]string{
		dispatch.JobRequestEmission:    "requested emissions data from you",
		dispatch.JobSubmissionEmission: "submitted emissions data for your approval",
		dispatch.JobAcceptedEmission:   "accepted your emissions allocation",
		dispatch.JobRejectedEmission:   "rejected your emissions allocation",
		dispatch.JobUpdatedEmission:    "updated a previously approved allocation",
		dispatch.JobDeletedEmission:    "deleted an emissions allocation",
		dispatch.JobInvitationEmail:    "invited you to their value chain",
	}
	for kind, action := range emailKinds {
		worker.Handle(kind, notificationHandler(mail, action))
	}

	worker.Handle(dispatch.JobCRMFirstInvitation, func(ctx context.Context, job queue.Job) error {
		inviter, _ := job.Payload["inviter_company_name"].(string)
		invited, _ := job.Payload["invited_company_name"].(string)

		// Make sure the invited contact exists in the CRM before attaching
		// the engagement note.
		if email, _ := job.Payload["recipient_email"].(string); email != "" {
			name, _ := job.Payload["recipient_name"].(string)
			if err := crm.UpsertContact(ctx, email, name, invited); err != nil {
				return err
			}
		}
		return crm.RecordFirstInvitation(ctx, inviter, invited)
	})

	return worker
}

func notificationHandler(mail *mailer.Client, action string) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		to, _ := job.Payload["recipient_email"].(string)
		if to == "" {
			// Nobody to notify; treat as done.
			return nil
		}
		toName, _ := job.Payload["recipient_name"].(string)
		supplier, _ := job.Payload["supplier_name"].(string)
		customer, _ := job.Payload["customer_name"].(string)

		counterparty := supplier
		if counterparty == "" {
			counterparty = customer
		}

		return mail.Send(ctx, mailer.Message{
			To:      to,
			ToName:  toName,
			Subject: counterparty + " " + action,
			Body:    buildBody(job.Payload, action),
		})
	}
}

func buildBody(payload map[string]interface{}, action string) string {
	body := "Hello,\n\nA trading partner " + action + "."
	if year, ok := payload["year"]; ok {
		body += "\nYear: " + toString(year)
	}
	if emissions, ok := payload["emissions"]; ok {
		body += "\nEmissions (tCO2e): " + toString(emissions)
	}
	body += "\n\nSign in to review the details."
	return body
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON round-trips numbers as float64.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}

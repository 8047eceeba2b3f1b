package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/shoplane-backend/api/controllers"
	webhookcontrollers "github.com/shoplane/shoplane-backend/api/controllers/webhooks"
	"github.com/shoplane/shoplane-backend/api/middleware"
	cartsvc "github.com/shoplane/shoplane-backend/internal/cart"
	checkoutsvc "github.com/shoplane/shoplane-backend/internal/checkout"
	orderssvc "github.com/shoplane/shoplane-backend/internal/orders"
	paymentssvc "github.com/shoplane/shoplane-backend/internal/payments"
	"github.com/shoplane/shoplane-backend/pkg/config"
	"github.com/shoplane/shoplane-backend/pkg/db"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	"github.com/shoplane/shoplane-backend/pkg/logger"
	"github.com/shoplane/shoplane-backend/pkg/redis"
)

// Params carries everything the router wires into handlers.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	CartService     cartsvc.Service
	CheckoutService checkoutsvc.Service
	OrdersService   orderssvc.Service
	PaymentsService paymentssvc.Service

	SquareClient  webhookSigner
	StripeClient  webhookSigner
	WebhookGuards WebhookGuards
}

type webhookSigner interface {
	SigningSecret() string
}

// WebhookGuards holds per-provider idempotency guards so a replayed Square
// event never collides with a Stripe key.
type WebhookGuards struct {
	Square webhookGuard
	Stripe webhookGuard
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(p.PaymentsService, p.SquareClient, p.WebhookGuards.Square, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.PaymentsService, p.StripeClient, p.WebhookGuards.Stripe, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Cart is reachable anonymously via the guest token header; a valid
		// bearer token binds the cart to the user instead.
		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Get("/", controllers.GetCart(p.CartService, logg))
			r.Post("/items", controllers.AddCartItem(p.CartService, logg))
			r.Delete("/items", controllers.ClearCart(p.CartService, logg))
			r.Patch("/items/{variantID}", controllers.UpdateCartItem(p.CartService, logg))
			r.Delete("/items/{variantID}", controllers.RemoveCartItem(p.CartService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Post("/checkout", controllers.Checkout(p.CheckoutService, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.ListOrders(p.OrdersService, logg))
				r.Get("/{orderID}", controllers.GetOrder(p.OrdersService, logg))
				r.Post("/{orderID}/cancel", controllers.CancelOrder(p.OrdersService, logg))

				r.Get("/{orderID}/payment", controllers.GetPayment(p.PaymentsService, logg))
				r.Get("/{orderID}/payment/events", controllers.ListPaymentEvents(p.PaymentsService, logg))
				r.Post("/{orderID}/payment/initiate", controllers.InitiatePayment(p.PaymentsService, logg))
				r.Post("/{orderID}/payment/confirm-transfer", controllers.ConfirmTransfer(p.PaymentsService, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

		r.Post("/payments/{paymentID}/review", controllers.ReviewTransfer(p.PaymentsService, logg))
		r.Post("/orders/{orderID}/ship", controllers.ShipOrder(p.OrdersService, logg))
		r.Post("/orders/{orderID}/deliver", controllers.DeliverOrder(p.OrdersService, logg))
	})

	return r
}

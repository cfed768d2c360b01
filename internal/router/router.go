package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/recomplejos/court-booking/internal/handler"
	"github.com/recomplejos/court-booking/internal/middleware"
)

// RegisterRoutes registers routes that carry no operator guard on the
// provided Echo instance: the health check, the customer booking flow
// and the public availability view.  The rate limiter covers only the
// customer-facing routes; the health check stays open for probes.
func RegisterRoutes(e *echo.Echo, b *handler.BookingHandler, limiter echo.MiddlewareFunc) {
	// Load balancers and monitoring probe this endpoint.
	e.GET("/healthz", handler.Health)

	// Customer-facing booking flow.  Creating a booking claims the
	// slot and returns the checkout redirect in one round trip.
	e.POST("/v1/bookings", b.CreateBooking, limiter)
	e.GET("/v1/facilities/:id/availability", b.Availability, limiter)
}

// RegisterOperator registers the operator panel routes: facility
// configuration, the reservation calendar, manual records and
// credential management.  All of them sit behind the admin token
// guard.
func RegisterOperator(e *echo.Echo, b *handler.BookingHandler, f *handler.FacilityHandler, o *handler.OAuthHandler, adminToken string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", limiter, middleware.AdminAuth(adminToken))

	// Facility configuration document, read and full replace.
	g.GET("/facilities/:id", f.GetFacility)
	g.PUT("/facilities/:id", f.UpsertFacility)

	// Reservation calendar and operator-entered records.
	g.GET("/facilities/:id/reservations", b.ListReservations)
	g.POST("/facilities/:id/reservations", b.CreateOperatorRecord)
	g.DELETE("/facilities/:id/reservations/:key", b.DeleteReservation)

	// Manual credential onboarding with a pre-issued token pair.
	g.POST("/facilities/:id/credentials", o.UpsertCredential)

	// OAuth connect flow.  Connect and callback stay outside the guard
	// because the gateway redirects the operator's browser through
	// them without our bearer token.
	e.GET("/v1/mp/connect", o.Connect, limiter)
	e.GET("/v1/mp/callback", o.Callback, limiter)
	g.GET("/mp/status", o.Status)
}

// RegisterWebhook registers the gateway's server-to-server
// notification endpoint.  The gateway cannot present our admin token,
// so the route is open; the reconciler verifies every event against
// the gateway before acting on it.  No rate limiter here: a burst of
// redeliveries must still be acknowledged with a 200, or the gateway
// keeps retrying forever.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/webhook/mp", w.Receive)
}

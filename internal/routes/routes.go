package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/beaconhq/beacon-api/internal/authz"
	"github.com/beaconhq/beacon-api/internal/handlers"
	"github.com/beaconhq/beacon-api/internal/models"
)

// NewRouter sets up the API routes.
func NewRouter(
	auth *handlers.AuthHandler,
	notif *handlers.NotificationHandler,
	inbox *handlers.InboxHandler,
	group *handlers.GroupHandler,
	track *handlers.TrackHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Public click-tracking redirect. Never behind auth: it serves links
	// embedded in already-delivered emails.
	router.HandleFunc("/trackClick", track.TrackClick).Methods(http.MethodGet)

	// Authenticated API
	api := router.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(auth.JWTMiddleware))

	// Inbox: any signed-in user sees their own deliveries.
	api.HandleFunc("/inbox", inbox.List).Methods(http.MethodGet)
	api.HandleFunc("/inbox/{deliveryID}/read", inbox.MarkRead).Methods(http.MethodPost)

	// Notification authoring and management: admin only.
	admin := api.NewRoute().Subrouter()
	admin.Use(authz.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/notifications", notif.Create).Methods(http.MethodPost)
	admin.HandleFunc("/notifications", notif.List).Methods(http.MethodGet)
	admin.HandleFunc("/notifications/{intentID}", notif.Get).Methods(http.MethodGet)
	admin.HandleFunc("/notifications/{intentID}/stats", notif.Stats).Methods(http.MethodGet)
	admin.HandleFunc("/notifications/{intentID}/resend", notif.Resend).Methods(http.MethodPost)

	// Group administration: admin only.
	admin.HandleFunc("/groups", group.Create).Methods(http.MethodPost)
	admin.HandleFunc("/groups", group.List).Methods(http.MethodGet)
	admin.HandleFunc("/groups/{groupID}/members", group.ListMembers).Methods(http.MethodGet)
	admin.HandleFunc("/groups/{groupID}/members", group.AddMember).Methods(http.MethodPost)
	admin.HandleFunc("/groups/{groupID}/members/{userID}", group.RemoveMember).Methods(http.MethodDelete)

	return router
}

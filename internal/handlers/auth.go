package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/authz"
	"github.com/beaconhq/beacon-api/internal/models"
	"github.com/beaconhq/beacon-api/internal/repository"
)

type AuthHandler struct {
	userRepository repository.UserRepository
	jwtSecret      string
	logger         zerolog.Logger
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(userRepo repository.UserRepository, jwtSecret string, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		userRepository: userRepo,
		jwtSecret:      jwtSecret,
		logger:         logger.With().Str("handler", "auth").Logger(),
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userRepository.CreateUser(req.Email, req.Password, req.FirstName, req.LastName, []models.UserRole{models.RoleViewer})
	if err != nil {
		http.Error(w, "Failed to create user: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, models.User{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsActive:  user.IsActive,
		Roles:     user.Roles,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userRepository.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		http.Error(w, "Authentication failed: "+err.Error(), http.StatusUnauthorized)
		return
	}

	rolesClaim := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		rolesClaim = append(rolesClaim, string(role))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"role":  string(models.HighestRole(user.Roles)),
		"roles": rolesClaim,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Failed to generate token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

// JWTMiddleware authenticates the bearer token and stores the caller's
// identity and roles on the request context.
func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}
		roles, ok := rolesFromClaims(claims)
		if !ok {
			http.Error(w, "Missing role claim", http.StatusUnauthorized)
			return
		}
		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			http.Error(w, "Missing subject claim", http.StatusUnauthorized)
			return
		}

		ctx := authz.WithIdentity(r.Context(), userID, roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func rolesFromClaims(claims jwt.MapClaims) ([]models.UserRole, bool) {
	rawRoles, ok := claims["roles"]
	if !ok {
		if single, ok := claims["role"].(string); ok && single != "" {
			role := models.UserRole(single)
			if !models.IsValidRole(role) {
				return nil, false
			}
			return []models.UserRole{role}, true
		}
		return nil, false
	}

	var roles []models.UserRole
	switch v := rawRoles.(type) {
	case []interface{}:
		for _, val := range v {
			str, ok := val.(string)
			if !ok {
				return nil, false
			}
			roles = append(roles, models.UserRole(str))
		}
	case []string:
		for _, str := range v {
			roles = append(roles, models.UserRole(str))
		}
	case string:
		roles = []models.UserRole{models.UserRole(v)}
	default:
		return nil, false
	}

	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(normalized) {
		return nil, false
	}
	return normalized, true
}

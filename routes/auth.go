package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sede-open/Scope3EApi-sub000/config"
	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/middleware"
	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/utils"
)

func SetupAuthRoutes(app *fiber.App, cfg config.Config) {
	auth := app.Group("/auth")
	auth.Post("/register", register(cfg))
	auth.Post("/login", login(cfg))
	auth.Get("/me", middleware.JWT(cfg.JWTSecret), me)
}

type registerPayload struct {
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func register(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body registerPayload
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}
		if body.Email == "" || body.Password == "" || body.CompanyName == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_name, email and password are required"})
		}

		var existing models.User
		database.DB.Where("email = ?", body.Email).First(&existing)
		if existing.ID != 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email already registered"})
		}

		hash, err := utils.HashPassword(body.Password)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not hash password"})
		}

		// New companies start in PENDING_USER_ACTIVATION: good enough
		// standing to transact, pending vetting completion.
		company := models.Company{
			Name:   body.CompanyName,
			Slug:   utils.GenerateSlug(body.CompanyName),
			Status: models.CompanyStatusPendingUserActivation,
		}
		if err := database.DB.Create(&company).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create company"})
		}

		user := models.User{
			Name:      body.Name,
			Email:     body.Email,
			Password:  hash,
			Role:      models.RoleSupplierEditor,
			CompanyID: company.ID,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create user"})
		}

		t, err := signToken(cfg, user)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not sign token"})
		}
		return c.JSON(fiber.Map{"token": t})
	}
}

func login(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body loginPayload
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		var user models.User
		database.DB.Where("email = ?", body.Email).First(&user)
		if user.ID == 0 || !utils.CheckPassword(user.Password, body.Password) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid email or password"})
		}

		t, err := signToken(cfg, user)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not sign token"})
		}
		return c.JSON(fiber.Map{"token": t})
	}
}

func me(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)

	var user models.User
	if err := database.DB.First(&user, actor.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	return c.JSON(user)
}

func signToken(cfg config.Config, user models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":    user.ID,
		"company_id": user.CompanyID,
		"role":       user.Role,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
		"iat":        time.Now().Unix(),
		"iss":        "scope3-api",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

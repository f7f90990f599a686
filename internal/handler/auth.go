package handlers

import (
	"net/http"
	"strings"
	"time"

	"Travault/internal/models"
	"Travault/internal/validation"
	constants "Travault/pkg/constant"
	"Travault/pkg/errors"
	"Travault/pkg/logger"
	"Travault/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrInvalidCredentials 邮箱或密码错误
var ErrInvalidCredentials = errors.WithCode(errors.CodeUnauthorized, "Invalid email or password")

type contactForm struct {
	Name         string `json:"name" validate:"max=100"`
	Phone        string `json:"phone" validate:"max=32"`
	Relationship string `json:"relationship" validate:"max=50"`
}

type registerForm struct {
	FirstName        string      `json:"firstName" validate:"required,max=50"`
	LastName         string      `json:"lastName" validate:"required,max=50"`
	Email            string      `json:"email" validate:"required,email"`
	Password         string      `json:"password" validate:"required,min=6,max=128"`
	Phone            string      `json:"phone" validate:"max=32"`
	Country          string      `json:"country" validate:"required,oneof=US UK CA AU DE FR JP IN BR MX"`
	EmergencyContact contactForm `json:"emergencyContact"`
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		response.Fail(c, "Invalid request body", nil)
		return false
	}
	return true
}

func (h *Handlers) handleRegister(c *gin.Context) {
	var form registerForm
	if !bindJSON(c, &form) {
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	form.Country = strings.ToUpper(strings.TrimSpace(form.Country))
	if err := validation.Check(form); err != nil {
		response.Error(c, err)
		return
	}
	user := &models.User{
		FirstName: strings.TrimSpace(form.FirstName),
		LastName:  strings.TrimSpace(form.LastName),
		Email:     form.Email,
		Phone:     form.Phone,
		Country:   form.Country,
		EmergencyContact: models.ContactPerson{
			Name:         form.EmergencyContact.Name,
			Phone:        form.EmergencyContact.Phone,
			Relationship: form.EmergencyContact.Relationship,
		},
	}
	db := h.db.WithContext(c.Request.Context())
	if err := models.CreateUser(db, user, form.Password); err != nil {
		response.Error(c, err)
		return
	}
	token, err := models.IssueToken(user.ID, time.Now())
	if err != nil {
		response.Error(c, errors.Internal(err, "failed to issue token"))
		return
	}
	logger.Info("user registered", zap.Uint("user", user.ID), zap.String("country", user.Country))
	response.Created(c, "User registered successfully", gin.H{"token": token, "user": user})
}

func (h *Handlers) handleLogin(c *gin.Context) {
	var form loginForm
	if !bindJSON(c, &form) {
		return
	}
	if err := validation.Check(form); err != nil {
		response.Error(c, err)
		return
	}
	db := h.db.WithContext(c.Request.Context())
	user, err := models.GetUserByEmail(db, form.Email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			response.Error(c, ErrInvalidCredentials)
			return
		}
		response.Error(c, err)
		return
	}
	if !user.IsActive || !user.CheckPassword(form.Password) {
		response.Error(c, ErrInvalidCredentials)
		return
	}
	now := time.Now()
	token, err := models.IssueToken(user.ID, now)
	if err != nil {
		response.Error(c, errors.Internal(err, "failed to issue token"))
		return
	}
	if err := models.TouchLastLogin(db, user.ID, now.UTC()); err != nil {
		logger.Warn("touch last login failed", zap.Uint("user", user.ID), zap.Error(err))
	}
	c.SetCookie(constants.TokenCookie, token, int((7 * 24 * time.Hour).Seconds()), "/", "", false, true)
	response.Success(c, "Login successful", gin.H{"token": token, "user": user})
}

func (h *Handlers) handleMe(c *gin.Context) {
	user := models.CurrentUser(c)
	if user == nil {
		response.AbortWithStatus(c, http.StatusUnauthorized, "Access denied. No token provided.", nil)
		return
	}
	response.Success(c, "", gin.H{"user": user})
}

package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/taxfolio/billing/internal/account/domain"
)

type createAccountRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	PlanID string `json:"plan_id"`
}

// CreateAccount provisions a tenant. New accounts start on the requested
// plan (FREE when omitted) with that plan's entitlement snapshot; paid
// plans still require a payment workflow to gain a period end date.
func (s *Server) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	planID := strings.TrimSpace(req.PlanID)
	if planID == "" {
		planID = "FREE"
	}
	p, err := s.catalog.GetPlan(planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	account := &accountdomain.Account{
		ID:                 s.genID.Generate(),
		Email:              email,
		Name:               strings.TrimSpace(req.Name),
		SubscriptionPlan:   p.ID,
		SubscriptionStatus: accountdomain.SubscriptionStatusActive,
		MaxUsers:           p.Entitlements.MaxUsers,
		MaxStorageMB:       p.Entitlements.MaxStorageMB,
		MaxAPICalls:        p.Entitlements.MaxAPICalls,
		Version:            1,
	}
	if err := s.accounts.Insert(c.Request.Context(), s.db, account); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": account})
}

func (s *Server) GetAccountByID(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, accountdomain.ErrAccountNotFound)
		return
	}
	account, err := s.accounts.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

package server

import (
	"net/http"
	"strings"

	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/authcontext"
	creditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type chargeRequest struct {
	Cost   int64  `json:"cost"`
	Reason string `json:"reason"`
}

// Charge gates one polish operation behind available credit. A 402 response
// carries the typed rejection so the host can surface the right message.
func (s *Server) Charge(c *gin.Context) {
	actor, ok := authcontext.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req chargeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}
	if req.Cost == 0 {
		req.Cost = s.cfg.PolishCost
	}
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "cv_polish"
	}

	result, err := s.creditSvc.Charge(c.Request.Context(), creditdomain.ChargeRequest{
		UserID:      actor.UserID,
		Cost:        req.Cost,
		Reason:      req.Reason,
		AdminBypass: actor.AdminBypass,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !result.Authorized {
		c.JSON(http.StatusPaymentRequired, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) GetBalance(c *gin.Context) {
	scope, err := s.scopeFromQueryOrActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.creditSvc.Balance(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "balance": balance})
}

func (s *Server) GetCapStatus(c *gin.Context) {
	orgID, err := parseID(c.Query("org_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, err := parseID(c.Query("user_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	status, err := s.creditSvc.CapStatus(c.Request.Context(), orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) ListLedger(c *gin.Context) {
	scope, err := s.scopeFromQueryOrActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		Limit int `form:"limit,default=50"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entries, total, err := s.creditSvc.ListLedger(c.Request.Context(), scope, query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "entries": entries, "total": total})
}

type grantRequest struct {
	ScopeType string `json:"scope_type" binding:"required"`
	ScopeID   string `json:"scope_id" binding:"required"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason" binding:"required"`
}

func (s *Server) GrantCredits(c *gin.Context) {
	actor, _ := authcontext.ActorFromContext(c.Request.Context())

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	scope, err := parseScope(req.ScopeType, req.ScopeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	newBalance, err := s.creditSvc.Grant(c.Request.Context(), scope, req.Delta, req.Reason, actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "new_balance": newBalance})
}

type setBalanceRequest struct {
	ScopeType     string `json:"scope_type" binding:"required"`
	ScopeID       string `json:"scope_id" binding:"required"`
	TargetBalance int64  `json:"target_balance"`
	Reason        string `json:"reason" binding:"required"`
}

func (s *Server) SetExactBalance(c *gin.Context) {
	actor, _ := authcontext.ActorFromContext(c.Request.Context())

	var req setBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	scope, err := parseScope(req.ScopeType, req.ScopeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	newBalance, err := s.creditSvc.SetExactBalance(c.Request.Context(), scope, req.TargetBalance, req.Reason, actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "new_balance": newBalance})
}

type upsertCapRequest struct {
	OrgID  string `json:"org_id" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
	Cap    *int64 `json:"cap"`
	Active *bool  `json:"active"`
}

func (s *Server) UpsertMonthlyCap(c *gin.Context) {
	actor, _ := authcontext.ActorFromContext(c.Request.Context())

	var req upsertCapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	orgID, err := parseID(req.OrgID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, err := parseID(req.UserID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	cap, err := s.creditSvc.UpsertMonthlyCap(c.Request.Context(), creditdomain.UpsertCapRequest{
		OrgID:       orgID,
		UserID:      userID,
		Cap:         req.Cap,
		Active:      active,
		ActorUserID: actor.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cap)
}

// scopeFromQueryOrActor reads an explicit scope from the query string, falling
// back to the caller's own resolved scope when none is given.
func (s *Server) scopeFromQueryOrActor(c *gin.Context) (creditdomain.Scope, error) {
	if c.Query("scope_type") == "" && c.Query("scope_id") == "" {
		actor, ok := authcontext.ActorFromContext(c.Request.Context())
		if !ok {
			return creditdomain.Scope{}, ErrUnauthorized
		}
		return s.creditSvc.ResolveScope(c.Request.Context(), actor.UserID)
	}
	return parseScope(c.Query("scope_type"), c.Query("scope_id"))
}

func parseScope(scopeType, scopeID string) (creditdomain.Scope, error) {
	id, err := parseID(scopeID)
	if err != nil {
		return creditdomain.Scope{}, ErrInvalidRequest
	}
	switch creditdomain.ScopeType(strings.TrimSpace(scopeType)) {
	case creditdomain.ScopeTypeOrg:
		return creditdomain.Scope{Type: creditdomain.ScopeTypeOrg, ID: id}, nil
	case creditdomain.ScopeTypeUser:
		return creditdomain.Scope{Type: creditdomain.ScopeTypeUser, ID: id}, nil
	default:
		return creditdomain.Scope{}, ErrInvalidRequest
	}
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

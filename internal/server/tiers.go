package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
)

// @Summary      List Tiers
// @Description  Active tiers ordered by price
// @Tags         tiers
// @Produce      json
// @Success      200  {object}  APIResponse
// @Router       /tiers [get]
func (s *Server) ListTiers(c *gin.Context) {
	tiers, err := s.tierRepo.ListTiers(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, tiers)
}

// @Summary      Get Tier
// @Description  Tier by ID
// @Tags         tiers
// @Produce      json
// @Param        id  path  string  true  "Tier ID"
// @Success      200  {object}  APIResponse
// @Router       /tiers/{id} [get]
func (s *Server) GetTier(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id must be a valid tier id"))
		return
	}

	tier, err := s.tierRepo.FindTierByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tier == nil {
		AbortWithError(c, tierdomain.ErrTierNotFound)
		return
	}
	respondData(c, tier)
}

// @Summary      Invalidate Tier Snapshot
// @Description  Drops a principal's cached tier snapshot so the next request resolves it fresh
// @Tags         tiers
// @Produce      json
// @Param        principal_id  path  string  true  "Principal ID"
// @Success      200  {object}  APIResponse
// @Router       /tiers/snapshot/{principal_id} [delete]
func (s *Server) InvalidateTierSnapshot(c *gin.Context) {
	principalID, err := snowflake.ParseString(c.Param("principal_id"))
	if err != nil {
		AbortWithError(c, newValidationError("principal_id must be a valid id"))
		return
	}

	if err := s.tiers.InvalidateSnapshot(c.Request.Context(), principalID); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"invalidated": principalID.String()})
}

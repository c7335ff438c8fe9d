// Partner HTTP handlers.
//
// This file exposes partner discovery and blocking:
//   - GET    /partners             (ranked candidates for the card stack)
//   - POST   /partners/{id}/block  (block a partner)
//   - DELETE /partners/{id}/block  (remove a block)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/taalmeet/internal/services"
	"github.com/tbourn/taalmeet/internal/utils"
)

// PartnerResponse is a partner card as served to clients.
type PartnerResponse struct {
	ID         string   `json:"id" example:"bram"`
	Name       string   `json:"name" example:"Bram"`
	AvatarURL  string   `json:"avatar_url,omitempty"`
	Languages  []string `json:"languages" example:"nl,en"`
	Interests  string   `json:"interests,omitempty" example:"fietsen,jazz"`
	DistanceKM *float64 `json:"distance_km,omitempty" example:"3.4"`
	MatchScore float64  `json:"match_score" example:"0.82"`
	Online     bool     `json:"online"`
	Available  bool     `json:"available"`
}

// ListPartnersResponse is the ranked candidate list, best match first.
type ListPartnersResponse struct {
	Partners []PartnerResponse `json:"partners"`
}

func toPartnerResponse(m services.PartnerMatch) PartnerResponse {
	langs := m.Languages
	if langs == nil {
		langs = []string{}
	}
	return PartnerResponse{
		ID:         m.Partner.ID,
		Name:       m.Partner.Name,
		AvatarURL:  m.Partner.AvatarURL,
		Languages:  langs,
		Interests:  m.Partner.Interests,
		DistanceKM: m.DistanceKM,
		MatchScore: m.MatchScore,
		Online:     m.Partner.Online,
		Available:  m.Partner.Available,
	}
}

// parseLocation reads lat/lon. Both or neither must be present.
func parseLocation(c *gin.Context) (*services.Location, bool) {
	lat, okLat := utils.ParseFloatPtr(c.Query("lat"))
	lon, okLon := utils.ParseFloatPtr(c.Query("lon"))
	if !okLat || !okLon || (lat == nil) != (lon == nil) {
		return nil, false
	}
	if lat == nil {
		return nil, true
	}
	return &services.Location{Lat: *lat, Lon: *lon}, true
}

// ListPartners godoc
// @ID          listPartners
// @Summary     Discover language partners
// @Description Returns partner candidates ranked by language and interest match. With lat/lon, candidates are
// @Description annotated with distance and filtered by the configured radius. Blocked users are never returned.
// @Tags        Partners
// @Produce     json
//
// @Param       X-User-ID  header string  true  "Caller user id"  example(anna)
// @Param       lat        query  number  false "Latitude (WGS84)"   example(52.37)
// @Param       lon        query  number  false "Longitude (WGS84)"  example(4.89)
// @Param       limit      query  int     false "Max partners"       minimum(1) maximum(100)
//
// @Success     200  {object} handlers.ListPartnersResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /partners [get]
func (h *Handlers) ListPartners(c *gin.Context) {
	loc, okLoc := parseLocation(c)
	if !okLoc {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lon must both be valid numbers")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit = utils.Clamp(utils.AtoiDefault(raw, 0), 1, maxPageSize)
	}

	matches, err := h.discSvc.Find(c.Request.Context(), userID(c), loc, limit)
	if err != nil {
		failService(c, err, ErrCodeDiscoverFailed)
		return
	}
	resp := ListPartnersResponse{Partners: make([]PartnerResponse, 0, len(matches))}
	for _, m := range matches {
		resp.Partners = append(resp.Partners, toPartnerResponse(m))
	}
	ok(c, http.StatusOK, resp)
}

// BlockPartner godoc
// @ID          blockPartner
// @Summary     Block a partner
// @Description Blocks the partner. Neither side can message the other and the partner disappears from discovery.
// @Tags        Partners
// @Produce     json
//
// @Param       X-User-ID  header string  true  "Caller user id"  example(anna)
// @Param       id         path   string  true  "Partner id"      example(bram)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Partner not found"
// @Failure     409  {object} handlers.ErrorResponse "Already blocked"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /partners/{id}/block [post]
func (h *Handlers) BlockPartner(c *gin.Context) {
	partnerID := strings.TrimSpace(c.Param("id"))
	if err := h.blockSvc.Block(c.Request.Context(), userID(c), partnerID); err != nil {
		failService(c, err, ErrCodeBlockFailed)
		return
	}
	noContent(c)
}

// UnblockPartner godoc
// @ID          unblockPartner
// @Summary     Unblock a partner
// @Tags        Partners
// @Produce     json
//
// @Param       X-User-ID  header string  true  "Caller user id"  example(anna)
// @Param       id         path   string  true  "Partner id"      example(bram)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Not blocked"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /partners/{id}/block [delete]
func (h *Handlers) UnblockPartner(c *gin.Context) {
	partnerID := strings.TrimSpace(c.Param("id"))
	if err := h.blockSvc.Unblock(c.Request.Context(), userID(c), partnerID); err != nil {
		failService(c, err, ErrCodeBlockFailed)
		return
	}
	noContent(c)
}

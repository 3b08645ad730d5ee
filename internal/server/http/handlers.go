package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/and161185/media-vault/internal/convert"
	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/model"
	"github.com/gin-gonic/gin"
)

// bindJSON decodes and validates a request body.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: malformed body", errs.ErrInvalidArgument)
	}
	return convert.Validate(dst)
}

// bindOptionalJSON is bindJSON for bodies that may be absent, including an
// empty chunked body whose length is unknown.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 || c.Request.Body == nil {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: malformed body", errs.ErrInvalidArgument)
	}
	return convert.Validate(dst)
}

// --- shares ---

func (s *Server) createShare(c *gin.Context) {
	var req convert.CreateShareRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, s.log, err)
		return
	}
	rt, id, opts := req.ToModel()
	l, err := s.shares.Create(c.Request.Context(), callerFrom(c).UserID, rt, id, opts)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToShareLinkDTO(*l))
}

func (s *Server) listShares(c *gin.Context) {
	var q convert.ResourceRef
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, s.log, fmt.Errorf("%w: malformed query", errs.ErrInvalidArgument))
		return
	}
	if err := convert.Validate(q); err != nil {
		writeError(c, s.log, err)
		return
	}
	ls, err := s.shares.ListForResource(c.Request.Context(), callerFrom(c).UserID, model.ResourceType(q.ResourceType), q.ResourceID)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": convert.ToShareLinkDTOs(ls)})
}

func (s *Server) shareInfo(c *gin.Context) {
	info, err := s.shares.Info(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToShareInfoDTO(info))
}

func (s *Server) redeemShare(c *gin.Context) {
	var body convert.RedeemShareRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		writeError(c, s.log, err)
		return
	}
	caller := callerFrom(c)
	g, err := s.shares.Redeem(c.Request.Context(), c.Param("code"), model.RedeemRequest{
		Password:    body.Password,
		CallerID:    caller.UserID,
		CallerEmail: caller.VerifiedEmail(),
		RemoteIP:    c.ClientIP(),
	})
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToGrantDTO(g))
}

func (s *Server) deleteShare(c *gin.Context) {
	if err := s.shares.Delete(c.Request.Context(), c.Param("code"), callerFrom(c).UserID); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- vault ---

func (s *Server) vaultSetup(c *gin.Context) {
	var req convert.PassphraseRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, s.log, err)
		return
	}
	if err := s.vault.Setup(c.Request.Context(), callerFrom(c).UserID, req.Passphrase); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) vaultUnlock(c *gin.Context) {
	var req convert.PassphraseRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, s.log, err)
		return
	}
	sess, err := s.vault.Unlock(c.Request.Context(), callerFrom(c).UserID, req.Passphrase, c.ClientIP())
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToVaultSessionDTO(sess))
}

func (s *Server) vaultLock(c *gin.Context) {
	if err := s.vault.Lock(c.Request.Context(), callerFrom(c).UserID); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) vaultStatus(c *gin.Context) {
	st, err := s.vault.Status(c.Request.Context(), callerFrom(c).UserID)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToVaultStatusDTO(st))
}

func (s *Server) mediaToken(c *gin.Context) {
	var req convert.ResourceRef
	if err := bindJSON(c, &req); err != nil {
		writeError(c, s.log, err)
		return
	}
	tok, err := s.vault.IssueMediaToken(c.Request.Context(), callerFrom(c).UserID, c.GetHeader(VaultTokenHeader),
		model.ResourceType(req.ResourceType), req.ResourceID)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToTokenDTO(tok))
}

package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gym-class-api/internal/middleware"
	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// resolveStudent returns the student a request acts for. Students always act
// for their own lead; staff name the student explicitly.
func resolveStudent(c *gin.Context, requested string) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	requested = strings.TrimSpace(requested)
	if claims.Role.IsStaff() {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "studentId is required for staff requests")
		}
		return requested, nil
	}
	if claims.LeadID == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a student")
	}
	if requested != "" && requested != claims.LeadID {
		return "", appErrors.ErrForbidden
	}
	return claims.LeadID, nil
}

// authorizeOwner allows staff, or the student owning the record.
func authorizeOwner(c *gin.Context, studentID string) error {
	claims := claimsFromContext(c)
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role.IsStaff() || (claims.LeadID != "" && claims.LeadID == studentID) {
		return nil
	}
	return appErrors.ErrForbidden
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

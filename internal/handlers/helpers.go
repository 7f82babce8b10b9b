// internal/handlers/helpers.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/utils"
)

// currentUserID reads the authenticated user from the request context. The
// second return is false when the middleware did not set a valid id, in
// which case the handler must bail out.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	idStr, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	return id, true
}

func isAdmin(c *gin.Context) bool {
	userType, ok := utils.GetUserTypeFromContext(c)
	return ok && userType == string(models.UserTypeAdmin)
}

// pathUUID parses a :param path segment as a UUID, responding with a 400 on
// garbage input.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "invalid "+name, nil)
		return uuid.Nil, false
	}

	return id, true
}

// bindAndValidate decodes the JSON body into req and runs struct
// validation, writing the error response itself on failure.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return false
	}

	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return false
	}

	return true
}

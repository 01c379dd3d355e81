package firebaseauth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// BasePath prefixes the plugin's own endpoints.
const BasePath = "/firebase-auth"

// MountRoutes registers the plugin endpoints on the host router. With
// ServerSideOnly set, nothing is registered. With OverrideEmailPasswordFlow
// set, the host's native email sign-in and sign-up paths are claimed too.
func MountRoutes(router gin.IRouter, plugin *Plugin) {
	if plugin.config.ServerSideOnly {
		return
	}

	router.POST(BasePath+"/sign-in-with-google", func(contextGin *gin.Context) {
		var inbound SignInWithGoogleRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			respondError(contextGin, badRequest("invalid request body"))
			return
		}
		response, signInErr := plugin.SignInWithGoogle(contextGin.Request.Context(), inbound)
		if signInErr != nil {
			respondError(contextGin, signInErr)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	router.POST(BasePath+"/sign-in-with-email", func(contextGin *gin.Context) {
		var inbound SignInWithEmailRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			respondError(contextGin, badRequest("invalid request body"))
			return
		}
		response, signInErr := plugin.SignInWithEmail(contextGin.Request.Context(), inbound)
		if signInErr != nil {
			respondError(contextGin, signInErr)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	router.POST(BasePath+"/send-password-reset", func(contextGin *gin.Context) {
		var inbound SendPasswordResetRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			respondError(contextGin, badRequest("invalid request body"))
			return
		}
		response, sendErr := plugin.SendPasswordReset(contextGin.Request.Context(), inbound)
		if sendErr != nil {
			respondError(contextGin, sendErr)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	router.POST(BasePath+"/confirm-password-reset", func(contextGin *gin.Context) {
		var inbound ConfirmPasswordResetRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			respondError(contextGin, badRequest("invalid request body"))
			return
		}
		response, confirmErr := plugin.ConfirmPasswordReset(contextGin.Request.Context(), inbound)
		if confirmErr != nil {
			respondError(contextGin, confirmErr)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	router.POST(BasePath+"/verify-password-reset-code", func(contextGin *gin.Context) {
		var inbound VerifyPasswordResetCodeRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			respondError(contextGin, badRequest("invalid request body"))
			return
		}
		response, verifyErr := plugin.VerifyPasswordResetCode(contextGin.Request.Context(), inbound)
		if verifyErr != nil {
			respondError(contextGin, verifyErr)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	if plugin.config.OverrideEmailPasswordFlow {
		mountOverrideRoutes(router, plugin)
	}
}

// mountOverrideRoutes claims the host framework's native email endpoints so
// credentials are authenticated by Firebase instead of the host.
func mountOverrideRoutes(router gin.IRouter, plugin *Plugin) {
	router.POST("/sign-in/email", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			respondError(contextGin, badRequest("invalid request body"))
			return
		}
		response, signInErr := plugin.OverrideSignIn(contextGin.Request.Context(), inbound.Email, inbound.Password)
		if signInErr != nil {
			respondError(contextGin, signInErr)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})

	router.POST("/sign-up/email", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Name     string `json:"name"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			respondError(contextGin, badRequest("invalid request body"))
			return
		}
		response, signUpErr := plugin.OverrideSignUp(contextGin.Request.Context(), inbound.Email, inbound.Password, inbound.Name)
		if signUpErr != nil {
			respondError(contextGin, signUpErr)
			return
		}
		contextGin.JSON(http.StatusOK, response)
	})
}

func respondError(contextGin *gin.Context, failure error) {
	var apiErr *APIError
	if errors.As(failure, &apiErr) {
		contextGin.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr.Message})
		return
	}
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

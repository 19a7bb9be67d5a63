package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

var errInvalidRequest = errors.New("invalid request")

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err), errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateOrder), errors.Is(err, domain.ErrAlreadyPaid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError отдаёт ошибку клиенту. Текст внутренних ошибок наружу не уходит.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("request failed")
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: message})
}

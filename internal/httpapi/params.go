package httpapi

import (
	"strconv"
	"time"

	"engage-ledger/pkg/errutil"
	"engage-ledger/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func invalid(field, msg string, err error) error {
	return errutil.BadRequest("invalid "+field, err,
		errutil.WithDetails(errutil.Detail{Field: field, Message: msg}))
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, invalid(name, "must be a uuid", err)
	}
	return id, nil
}

func pathInt(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, invalid(name, "must be an integer", err)
	}
	return v, nil
}

// queryUUID returns uuid.Nil when the parameter is absent.
func queryUUID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid(name, "must be a uuid", err)
	}
	return id, nil
}

func queryInt(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalid(name, "must be an integer", err)
	}
	return v, nil
}

func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, invalid(name, "must be an RFC 3339 timestamp", err)
	}
	return &t, nil
}

func currentUser(c *gin.Context) (*middleware.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, errutil.Unauthorized("authentication required", nil)
	}
	return u, nil
}

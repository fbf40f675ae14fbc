package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jacentio/telemetry-gateway/store"
	"github.com/jacentio/telemetry-gateway/telemetry"
)

// Info is the body of GET /.
type Info struct {
	Service   string   `json:"service"`
	Endpoints []string `json:"endpoints"`
	Table     string   `json:"table"`
}

var endpoints = []string{
	"POST /telemetry",
	"GET /telemetry?deviceId=<id>&top=<n>",
	"PUT /telemetry/<rowKey>",
	"DELETE /telemetry/<rowKey>?deviceId=<id>",
	"GET /healthz",
}

func (r *Router) info(c *gin.Context) {
	c.JSON(http.StatusOK, Info{
		Service:   r.opts.ServiceName,
		Endpoints: endpoints,
		Table:     r.connector.TableName(),
	})
}

func (r *Router) healthz(c *gin.Context) {
	h := r.health.Report(c.Request.Context())
	status := http.StatusOK
	if !h.Ready {
		status = http.StatusInternalServerError
	}
	c.JSON(status, h)
}

func (r *Router) createTelemetry(c *gin.Context) {
	st, ok := r.acquire(c)
	if !ok {
		return
	}
	body, ok := r.readBody(c)
	if !ok {
		return
	}

	rec := telemetry.NewRecord(body)
	if err := st.Create(c.Request.Context(), rec); err != nil {
		r.logger.Error("create telemetry failed",
			"partitionKey", rec.PartitionKey,
			"rowKey", rec.RowKey,
			"error", err,
		)
		abortWithStoreError(c, err)
		return
	}

	r.logger.Info("telemetry created", "partitionKey", rec.PartitionKey, "rowKey", rec.RowKey)
	c.JSON(http.StatusCreated, gin.H{"status": "created", "entity": rec})
}

func (r *Router) listTelemetry(c *gin.Context) {
	st, ok := r.acquire(c)
	if !ok {
		return
	}

	opts := telemetry.ParseListOptions(c.Query("deviceId"), c.Query("top"))
	r.logger.Debug("list telemetry", "deviceId", opts.DeviceID, "top", opts.Top, "hasTop", opts.HasTop)

	records, err := st.List(c.Request.Context(), opts.DeviceID)
	if err != nil {
		r.logger.Error("list telemetry failed", "deviceId", opts.DeviceID, "error", err)
		abortWithStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, telemetry.Shape(records, opts))
}

func (r *Router) updateTelemetry(c *gin.Context) {
	st, ok := r.acquire(c)
	if !ok {
		return
	}
	body, ok := r.readBody(c)
	if !ok {
		return
	}

	rec := telemetry.MergeRecord(body, c.Param("rowKey"))
	if err := st.Merge(c.Request.Context(), rec); err != nil {
		r.logger.Error("update telemetry failed",
			"partitionKey", rec.PartitionKey,
			"rowKey", rec.RowKey,
			"error", err,
		)
		abortWithStoreError(c, err)
		return
	}

	r.logger.Info("telemetry updated", "partitionKey", rec.PartitionKey, "rowKey", rec.RowKey)
	c.JSON(http.StatusOK, gin.H{"status": "updated", "entity": rec})
}

func (r *Router) deleteTelemetry(c *gin.Context) {
	st, ok := r.acquire(c)
	if !ok {
		return
	}

	partitionKey := telemetry.PartitionKeyOrDefault(c.Query("deviceId"))
	rowKey := c.Param("rowKey")
	if err := st.Delete(c.Request.Context(), partitionKey, rowKey); err != nil {
		r.logger.Error("delete telemetry failed",
			"partitionKey", partitionKey,
			"rowKey", rowKey,
			"error", err,
		)
		abortWithStoreError(c, err)
		return
	}

	r.logger.Info("telemetry deleted", "partitionKey", partitionKey, "rowKey", rowKey)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// acquire resolves the store, answering 500 when it is not available.
func (r *Router) acquire(c *gin.Context) (*store.Store, bool) {
	st, err := r.connector.Acquire(c.Request.Context())
	if err != nil {
		abortWithStoreError(c, err)
		return nil, false
	}
	return st, true
}

// readBody reads and decodes the request body. Bodies that are not JSON
// objects decode to an empty map.
func (r *Router) readBody(c *gin.Context) (map[string]any, bool) {
	if c.Request.Body == nil {
		return map[string]any{}, true
	}
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, r.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, errBodyTooLarge,
				fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return nil, false
		}
		abortWithError(c, http.StatusInternalServerError, errUnexpected, err.Error())
		return nil, false
	}
	return telemetry.DecodeBody(data), true
}

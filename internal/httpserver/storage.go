package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/service/storage"
)

type storeAPI interface {
	Ping(ctx context.Context) error
	Keys(ctx context.Context) []string
	All(ctx context.Context) map[string]json.RawMessage
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Put(ctx context.Context, key string, value interface{}, opts storage.SetOptions) error
	Remove(ctx context.Context, key string) bool
	Expiry(ctx context.Context, key string) (time.Time, bool)
	IsExpired(ctx context.Context, key string) bool
	Stats(ctx context.Context) storage.Stats
	ClearExpired(ctx context.Context) int
	ClearAll(ctx context.Context) bool
	Backup(ctx context.Context) string
	Restore(ctx context.Context, data string) bool
	Export(ctx context.Context) string
	Import(ctx context.Context, data string) bool
}

type putItemRequest struct {
	Value      json.RawMessage `json:"value"`
	TTLSeconds int             `json:"ttlSeconds"`
	Obfuscate  bool            `json:"obfuscate"`
}

const maxRestoreBody = 16 << 20

func (h *handlers) storageKeys(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": h.store.Keys(c.Request.Context())})
}

func (h *handlers) storageItems(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.All(c.Request.Context()))
}

func (h *handlers) storageGet(c *gin.Context) {
	key := c.Param("key")
	value, ok := h.store.Get(c.Request.Context(), key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

func (h *handlers) storagePut(c *gin.Context) {
	var req putItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if len(req.Value) == 0 {
		badRequest(c, "value required")
		return
	}
	if req.TTLSeconds < 0 {
		badRequest(c, "ttlSeconds must not be negative")
		return
	}
	opts := storage.SetOptions{Obfuscate: req.Obfuscate}
	if req.TTLSeconds > 0 {
		opts.Expiry = time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
	}
	if err := h.store.Put(c.Request.Context(), c.Param("key"), req.Value, opts); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) storageRemove(c *gin.Context) {
	if !h.store.Remove(c.Request.Context(), c.Param("key")) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) storageExpiry(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")
	resp := gin.H{"key": key, "expiry": nil, "expired": h.store.IsExpired(ctx, key)}
	if expiry, ok := h.store.Expiry(ctx, key); ok {
		resp["expiry"] = expiry.UnixMilli()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) storageStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats(c.Request.Context()))
}

func (h *handlers) storageClearExpired(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": h.store.ClearExpired(c.Request.Context())})
}

func (h *handlers) storageClear(c *gin.Context) {
	if !h.store.ClearAll(c.Request.Context()) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) storageBackup(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(h.store.Backup(c.Request.Context())))
}

func (h *handlers) storageExport(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(h.store.Export(c.Request.Context())))
}

func (h *handlers) storageRestore(c *gin.Context) {
	h.replay(c, h.store.Restore)
}

func (h *handlers) storageImport(c *gin.Context) {
	h.replay(c, h.store.Import)
}

func (h *handlers) replay(c *gin.Context, apply func(context.Context, string) bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRestoreBody))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	if !apply(c.Request.Context(), string(body)) {
		badRequest(c, "data rejected")
		return
	}
	c.Status(http.StatusNoContent)
}

package api

import (
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/justapithecus/glean/adapter"
	"github.com/justapithecus/glean/capture"
	"github.com/justapithecus/glean/store"
)

// CaptureResponse is the body of a successful capture.
type CaptureResponse struct {
	URL          string `json:"url"`
	Key          string `json:"key"`
	Location     string `json:"location"`
	PresignedURL string `json:"presigned_url,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	DurationMs   int64  `json:"duration_ms"`
	Queued       bool   `json:"queued"`
}

// info answers with an informational 200, matching the refusal behavior
// callers of the capture endpoint expect.
func info(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf(format, args...)})
}

// capture screenshots https://<target>, uploads the PNG and announces it.
func (s *Server) capture(c *gin.Context) {
	start := s.deps.Now()
	target := strings.TrimPrefix(c.Param("target"), "/")
	if target == "" {
		info(c, "no URL submitted")
		return
	}

	ip := c.ClientIP()
	if !s.allowed(ip) {
		s.logger.Warn("capture refused", map[string]any{"client_ip": ip})
		info(c, "not allowed - IP %s", ip)
		return
	}

	ctx := c.Request.Context()
	domain := capture.Domain(target)
	if addrs, err := s.deps.Resolver.LookupHost(ctx, domain); err != nil || len(addrs) == 0 {
		info(c, "invalid URL %s submitted", target)
		return
	}

	url := "https://" + target
	ws := filepath.Join(s.workDir(), "glean-capture-"+uuid.NewString())
	if err := os.MkdirAll(ws, 0o700); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "workspace unavailable"})
		return
	}
	defer os.RemoveAll(ws)

	out := filepath.Join(ws, "screen.png")
	if err := s.deps.Capturer.Capture(ctx, url, out); err != nil {
		_ = c.Error(err)
		info(c, "error getting - %s", url)
		return
	}

	body, err := os.ReadFile(out)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "screenshot unreadable"})
		return
	}

	key := capture.ObjectKey(s.config.CapturePrefix, target, start)
	if err := s.deps.Store.Put(ctx, s.config.Bucket, key, body, store.PutOptions{
		ContentType:  store.ContentTypePNG,
		StorageClass: store.StorageClassStandard,
		ACL:          store.ACLPublicRead,
	}); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}

	resp := CaptureResponse{
		URL:       url,
		Key:       key,
		Location:  adapter.Location(s.config.Bucket, key),
		SizeBytes: int64(len(body)),
	}

	if s.deps.Publisher != nil {
		err := s.deps.Publisher.Send(ctx, resp.Location)
		s.deps.Metrics.ObservePublish(err == nil)
		if err != nil {
			s.logger.Warn("capture enqueue failed", map[string]any{"key": key, "error": err.Error()})
		} else {
			resp.Queued = true
		}
	}

	if s.deps.Presigner != nil {
		signed, err := s.deps.Presigner.Presign(ctx, s.config.Bucket, key)
		if err != nil {
			s.logger.Warn("presign failed", map[string]any{"key": key, "error": err.Error()})
		} else {
			resp.PresignedURL = signed
		}
	}

	resp.DurationMs = s.deps.Now().Sub(start).Milliseconds()
	c.JSON(http.StatusOK, resp)
}

// allowed reports whether ip falls in the allowlist. An empty allowlist
// allows everyone; unparseable addresses are refused.
func (s *Server) allowed(ip string) bool {
	if len(s.config.Allowlist) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.config.Allowlist {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (s *Server) workDir() string {
	if s.config.WorkDir != "" {
		return s.config.WorkDir
	}
	return os.TempDir()
}

package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/services"
)

const (
	auditTargetKey = "audit_target"
	maxAuditBody   = 2000
)

var sensitiveKeys = map[string]bool{
	"password":      true,
	"old_password":  true,
	"new_password":  true,
	"scan_password": true,
	"token":         true,
	"scan_token":    true,
	"secret":        true,
}

// SetAuditTarget names the scan, issue or project a request acted on when
// the route itself does not carry it, e.g. a freshly started scan.
func SetAuditTarget(c *gin.Context, target string) {
	c.Set(auditTargetKey, target)
}

// AuditLog records every mutating request to system_logs once the handler
// has finished. Secrets in JSON bodies are masked at any depth.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			body = auditBody(raw)
		}

		c.Next()

		module, action := parseRouteInfo(c.FullPath(), method)
		status := c.Writer.Status()

		var uid *uint
		if id := GetUserID(c); id > 0 {
			uid = &id
		}

		level := services.LevelInfo
		if status >= http.StatusInternalServerError {
			level = services.LevelError
		} else if status >= http.StatusBadRequest {
			level = services.LevelWarning
		}

		services.WriteLog(services.LogEntry{
			Level:     level,
			Module:    module,
			Action:    action,
			Target:    auditTarget(c, module),
			Message:   fmt.Sprintf("%s %s %s -> %d", GetUsername(c), method, c.Request.URL.Path, status),
			Status:    status,
			UserID:    uid,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra:     map[string]any{"body": body, "audit": true},
		})
	}
}

// parseRouteInfo extracts module and action from a gin route pattern.
// "/api/scans/:id/cancel" + POST gives "Scans", "Cancel";
// "/api/projects/:id" + PUT gives "Projects", "Update".
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")
	path = strings.TrimPrefix(path, "admin/")

	parts := strings.Split(path, "/")
	if parts[0] == "" {
		module = "unknown"
	} else {
		module = titleWords(strings.ReplaceAll(parts[0], "-", " "))
	}

	if last := parts[len(parts)-1]; len(parts) > 1 && !strings.HasPrefix(last, ":") {
		return module, titleWords(strings.ReplaceAll(last, "-", " "))
	}

	switch method {
	case http.MethodPost:
		action = "Create"
	case http.MethodPut, http.MethodPatch:
		action = "Update"
	case http.MethodDelete:
		action = "Delete"
	default:
		action = method
	}
	return module, action
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// auditTarget prefers an explicit target, then the route's :id param.
func auditTarget(c *gin.Context, module string) string {
	if v, ok := c.Get(auditTargetKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	id := c.Param("id")
	if id == "" {
		return ""
	}
	kind := strings.TrimSuffix(strings.ToLower(strings.ReplaceAll(module, " ", "-")), "s")
	return kind + ":" + id
}

// auditBody renders a request body for the log. JSON is re-encoded with
// secrets masked; anything else is dropped since it cannot be masked.
func auditBody(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "[non-json body omitted]"
	}
	out, err := json.Marshal(maskSecrets(v))
	if err != nil {
		return ""
	}
	s := string(out)
	if len(s) > maxAuditBody {
		s = s[:maxAuditBody] + "...[truncated]"
	}
	return s
}

func maskSecrets(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				t[k] = "***"
				continue
			}
			t[k] = maskSecrets(inner)
		}
	case []any:
		for i, inner := range t {
			t[i] = maskSecrets(inner)
		}
	}
	return v
}

package assets

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes serves the host application's precompiled build output by
// exact filename. Assets shipped with a compression suffix are served with
// the matching Content-Encoding so the browser decompresses in flight.
func RegisterRoutes(router *gin.Engine, dir string, logger *zap.Logger) {
	log := logger.Named("assets")

	router.GET("/app/*filepath", func(c *gin.Context) {
		rel := path.Clean("/" + c.Param("filepath"))
		full := filepath.Join(dir, filepath.FromSlash(rel))

		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			log.Debug("asset not found", zap.String("path", rel))
			c.Status(http.StatusNotFound)
			return
		}

		name := rel
		switch {
		case strings.HasSuffix(name, ".br"):
			c.Header("Content-Encoding", "br")
			name = strings.TrimSuffix(name, ".br")
		case strings.HasSuffix(name, ".gz"):
			c.Header("Content-Encoding", "gzip")
			name = strings.TrimSuffix(name, ".gz")
		}
		c.Header("Content-Type", contentType(name))

		c.File(full)
	})
}

func contentType(name string) string {
	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		return ctype
	}
	return "application/octet-stream"
}

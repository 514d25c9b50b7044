package preview

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
	"github.com/rm-hull/gpu-filter-graph/internal/texture"
)

// Handler renders the graph for GET requests. The query parameters radius,
// x and y map one to one onto the controls; missing ones keep their current
// value. output selects diff, mask (default) or multiply.
func Handler(g *Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := parseParams(c, g.Params())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out, err := ParseOutput(c.Query("output"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		img, err := g.Render(params, out)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, gpu.ErrDeviceLost) {
				status = http.StatusServiceUnavailable
			}
			_ = c.Error(err)
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		etag := texture.ETag(img)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
		var buf bytes.Buffer
		if err := texture.Encode(&buf, img); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("ETag", etag)
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "image/png", buf.Bytes())
	}
}

// ParamsHandler reports the current control values.
func ParamsHandler(g *Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := g.Params()
		c.JSON(http.StatusOK, gin.H{"radius": p.Radius, "x": p.X, "y": p.Y})
	}
}

func parseParams(c *gin.Context, current Params) (Params, error) {
	p := current
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"radius", &p.Radius},
		{"x", &p.X},
		{"y", &p.Y},
	} {
		raw, ok := c.GetQuery(f.name)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return current, fmt.Errorf("invalid %s %q: %w", f.name, raw, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return current, fmt.Errorf("%s must be finite: %q", f.name, raw)
		}
		*f.dst = v
	}
	if p.Radius < 0 {
		return current, fmt.Errorf("radius must not be negative: %g", p.Radius)
	}
	return p, nil
}

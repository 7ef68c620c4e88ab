package vision

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

// Resolver turns an element description into a normalized bounding box. It
// never returns an error: any upstream failure is logged and reported as
// not found, which the caller turns into a failed action.
type Resolver struct {
	vision schemas.ImageUnderstanding
	logger *zap.Logger
}

// NewResolver creates a coordinate resolver over the given service.
func NewResolver(vision schemas.ImageUnderstanding, logger *zap.Logger) *Resolver {
	return &Resolver{vision: vision, logger: logger.Named("resolver")}
}

// Resolve locates description in the screenshot.
func (r *Resolver) Resolve(ctx context.Context, screenshot []byte, description string) (schemas.BoundingBox, bool) {
	if strings.TrimSpace(description) == "" || len(screenshot) == 0 {
		return schemas.BoundingBox{}, false
	}

	box, err := r.vision.Locate(ctx, screenshot, description)
	if err != nil {
		if errors.Is(err, ErrElementNotFound) {
			r.logger.Info("Element could not be located.", zap.String("element", description))
		} else {
			r.logger.Warn("Vision service failed while locating element.", zap.String("element", description), zap.Error(err))
		}
		return schemas.BoundingBox{}, false
	}
	if !box.Valid() {
		r.logger.Warn("Vision service returned a degenerate box.", zap.String("element", description), zap.Stringer("box", box))
		return schemas.BoundingBox{}, false
	}
	return box, true
}

// ResolvePoint locates description and returns the pixel center of its box
// in the given viewport.
func (r *Resolver) ResolvePoint(ctx context.Context, screenshot []byte, description string, vp schemas.Viewport) (x, y int, ok bool) {
	box, ok := r.Resolve(ctx, screenshot, description)
	if !ok {
		return 0, 0, false
	}
	px := box.ToPixels(vp)
	x, y = px.Center()
	r.logger.Debug("Resolved element.",
		zap.String("element", description),
		zap.Stringer("box", box),
		zap.Int("x", x),
		zap.Int("y", y),
	)
	return x, y, true
}

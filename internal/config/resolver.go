package config

import "github.com/moyuren/calendarsvc/internal/render"

// Resolve adapts the configured templates into the orchestrator's
// TemplateResolver contract, merging each item's overrides onto the
// shared rendering defaults.
func (c *Config) Resolve(name string) (render.TemplateDescriptor, bool) {
	item, ok := c.Templates.GetTemplate(name)
	if !ok {
		return render.TemplateDescriptor{}, false
	}

	scale := c.Templates.Config.DeviceScaleFactor
	if item.DeviceScaleFactor != nil {
		scale = *item.DeviceScaleFactor
	}
	quality := c.Templates.Config.JPEGQuality
	if item.JPEGQuality != nil {
		quality = *item.JPEGQuality
	}

	return render.TemplateDescriptor{
		Name:              item.Name,
		Path:              item.Path,
		Width:             item.Viewport.W,
		Height:            item.Viewport.H,
		DeviceScaleFactor: scale,
		JPEGQuality:       quality,
		ShowKFC:           item.ShowKFC,
		ShowStock:         item.ShowStock,
	}, true
}

// DefaultName returns the configured default template name.
func (c *Config) DefaultName() string {
	return c.Templates.Default
}

package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// CreatePage creates a page with stealth patches applied and the standard
// page configuration (viewport, user agent) in place. The same configuration
// is reapplied whenever a replacement page is opened on a reused browser.
func CreatePage(b *rod.Browser) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, err
	}
	if err := ConfigurePage(page); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

// ConfigurePage applies the standard page configuration.
func ConfigurePage(page *rod.Page) error {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	}); err != nil {
		return err
	}
	return page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: defaultUserAgent,
	})
}

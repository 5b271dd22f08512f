package main

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/browser"
)

type browserFlags struct {
	headless bool
	install  bool
	width    int
	height   int
}

func (f *browserFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.headless, "headless", true, "Run the browser without a window")
	cmd.Flags().BoolVar(&f.install, "install-browser", false, "Download the Playwright driver and Chromium before starting")
	cmd.Flags().IntVar(&f.width, "viewport-width", browser.DefaultViewportWidth, "Browser viewport width")
	cmd.Flags().IntVar(&f.height, "viewport-height", browser.DefaultViewportHeight, "Browser viewport height")
}

// start launches a Playwright browser. The caller closes it.
func (f *browserFlags) start() (*browser.PlaywrightActuator, error) {
	a := browser.NewPlaywrightActuator(browser.PlaywrightOptions{
		Install:        f.install,
		Headless:       f.headless,
		ViewportWidth:  f.width,
		ViewportHeight: f.height,
	})
	if err := a.Start(); err != nil {
		return nil, err
	}
	return a, nil
}

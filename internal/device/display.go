package device

import (
	"fmt"
	"image"
	"sync"

	"power_monitor/internal/logger"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

const (
	textMarginX = 0
	textMarginY = 2
)

// OLED renders status text on an SSD1306 panel.
type OLED struct {
	mu  sync.Mutex
	dev *ssd1306.Dev
	w   int
	h   int
}

func NewOLED(bus i2c.Bus, width, height int) (*OLED, error) {
	opts := ssd1306.DefaultOpts
	opts.W = width
	opts.H = height
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("ssd1306: %w", err)
	}
	return &OLED{dev: dev, w: width, h: height}, nil
}

// Show clears the panel and draws text starting at the top-left corner.
func (o *OLED) Show(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	img := renderText(o.w, o.h, text)
	return o.dev.Draw(img.Bounds(), img, image.Point{})
}

func (o *OLED) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, o.w, o.h))
	return o.dev.Draw(img.Bounds(), img, image.Point{})
}

// Halt turns the panel off.
func (o *OLED) Halt() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dev.Halt()
}

// renderText draws one line of text into a fresh frame.
func renderText(w, h int, text string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, w, h))
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: face,
		Dot:  fixed.P(textMarginX, textMarginY+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	return img
}

// LogDisplay writes display text to the log. Used when no panel is attached.
type LogDisplay struct {
	log *logger.Logger
}

func NewLogDisplay(log *logger.Logger) *LogDisplay {
	return &LogDisplay{log: log}
}

func (d *LogDisplay) Show(text string) error {
	d.log.Infow("display", "text", text)
	return nil
}

func (d *LogDisplay) Clear() error {
	d.log.Debugw("display_cleared")
	return nil
}
